/*
Package shapeloc is a facial landmark localization library. It evaluates a pretrained
cascade of regression trees, as exported by the dlib shape predictor, over a region of
an image and returns the position of every landmark (68 points for the usual face model).

The model can be imported from the dlib serialization format or from the compact cache
format produced by SaveCache. Once loaded a model is read-only, so a single Predictor
can be shared by any number of goroutines.

The package also provides a command line interface, which detects the faces in an image,
localizes the landmarks and writes either the annotated image or a JSON document.
To check the supported commands type:

	$ shapeloc --help

In case you wish to integrate the API in a self constructed environment here is a simple example:

	package main

	import (
		"fmt"
		"github.com/esimov/shapeloc"
		"github.com/esimov/shapeloc/geom"
	)

	func main() {
		model, err := shapeloc.Load("shape_predictor_68_face_landmarks.dat")
		if err != nil {
			fmt.Printf("Error loading the model: %s", err.Error())
			return
		}
		predictor := shapeloc.NewPredictor(model)
		points := predictor.Run(shapeloc.NewLumaImage(img), geom.NewRectangle(x, y, w, h))
		...
	}
*/
package shapeloc
