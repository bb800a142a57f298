package shape

// SplitFeature is a decision node comparing the difference of two feature
// values against a threshold.
type SplitFeature struct {
	Idx1   int
	Idx2   int
	Thresh float32
}

// RegressionTree is a complete binary tree stored breadth-first: the children
// of split i are at 2i+1 and 2i+2, and indexes past the last split address
// the leaves.
type RegressionTree struct {
	Splits []SplitFeature
	Leaves []Matrix
}

// Find routes the feature vector from the root down to a leaf and returns the
// leaf index together with its correction matrix. A difference equal to the
// threshold goes to the right child.
func (t *RegressionTree) Find(features []float32) (int, *Matrix) {
	i := 0
	for i < len(t.Splits) {
		split := &t.Splits[i]
		if features[split.Idx1]-features[split.Idx2] > split.Thresh {
			i = 2*i + 1
		} else {
			i = 2*i + 2
		}
	}
	i -= len(t.Splits)
	return i, &t.Leaves[i]
}
