package shapeloc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/esimov/shapeloc/utils"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"
)

// maxWorkers sets the maximum number of concurrently running workers.
const maxWorkers = 20

// Ops describes the source and the destination of an Execute run.
type Ops struct {
	Src, Dst, PipeName string
	Workers            int
	// Stderr receives the status messages. It defaults to os.Stderr.
	Stderr io.Writer
}

func (op *Ops) stderr() io.Writer {
	if op.Stderr == nil {
		return os.Stderr
	}
	return op.Stderr
}

// Execute locates the landmarks of the source, which can be a local image, a
// pipe, an URL or a directory. Directories are walked recursively and their
// images are processed concurrently, the results being written into the
// destination directory under the same base name.
func (p *Processor) Execute(ctx context.Context, op *Ops) error {
	log := p.logger()
	spinner := p.Spinner
	if spinner == nil {
		msg := fmt.Sprintf("%s %s",
			utils.DecorateText("⚡ SHAPELOC", utils.StatusMessage),
			utils.DecorateText("⇢ locating facial landmarks...", utils.DefaultMessage),
		)
		spinner = utils.NewSpinnerTo(op.stderr(), msg, time.Millisecond*80, true)
	}

	src := op.Src
	// Check if source path is a local image or URL.
	if utils.IsValidUrl(src) {
		f, err := utils.DownloadImage(ctx, src)
		if err != nil {
			return fmt.Errorf("failed to load the source image: %w", err)
		}
		defer os.Remove(f.Name())
		if err := f.Close(); err != nil {
			return fmt.Errorf("failed to load the source image: %w", err)
		}
		log.Debug("image downloaded", zap.String("url", op.Src), zap.String("path", f.Name()))
		src = f.Name()
	}

	var (
		info os.FileInfo
		err  error
	)
	// Check if the source is a pipe name or a regular file.
	if src == op.PipeName {
		info, err = os.Stdin.Stat()
	} else {
		info, err = os.Stat(src)
	}
	if err != nil {
		return fmt.Errorf("failed to load the source image: %w", err)
	}

	now := time.Now()
	switch mode := info.Mode(); {
	case mode.IsDir():
		err = p.executeDir(ctx, src, op, spinner)
	case mode.IsRegular() || mode&os.ModeNamedPipe != 0:
		ext := strings.ToLower(filepath.Ext(op.Dst))
		if op.Dst != op.PipeName && !isOutputExt(ext) {
			return fmt.Errorf("%v file type not supported", ext)
		}
		spinner.Start()
		err = op.process(p, src, op.Dst)
		spinner.StopMsg = statusMsg(err)
		spinner.Stop()
		op.printOpStatus(op.Dst, err)
	default:
		return fmt.Errorf("unsupported source %s", op.Src)
	}
	if err != nil {
		return err
	}

	log.Info("execution finished", zap.String("path", op.Src), zap.Duration("elapsed", time.Since(now)))
	fmt.Fprintf(op.stderr(), "\nExecution time: %s\n", utils.DecorateText(utils.FormatTime(time.Since(now)), utils.SuccessMessage))
	return nil
}

// executeDir processes every supported image found under dir on a bounded
// group of workers. The results mirror the layout of dir inside the
// destination directory. A failing image does not stop the others; the
// failures are reported together once the walk is over.
func (p *Processor) executeDir(ctx context.Context, dir string, op *Ops, spinner *utils.Spinner) error {
	if err := os.MkdirAll(op.Dst, 0755); err != nil {
		return fmt.Errorf("unable to create the destination directory: %w", err)
	}

	// Limit the concurrently running workers to maxWorkers.
	workers := op.Workers
	if workers <= 0 || workers > maxWorkers {
		workers = runtime.NumCPU()
	}

	var (
		mu   sync.Mutex
		errs []error
	)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	// Destinations already taken by a source image. The walk is sequential,
	// only the workers run concurrently.
	claimed := make(map[string]string)

	spinner.Start()
	walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() && path != dir && filepath.Clean(path) == filepath.Clean(op.Dst) {
			// Do not process the results of a destination nested in the source.
			return fs.SkipDir
		}
		if !d.Type().IsRegular() || !isImageExt(path) {
			return nil
		}

		dst, err := p.destination(dir, path, op.Dst, claimed)
		if err != nil {
			mu.Lock()
			errs = append(errs, fmt.Errorf("%s: %w", path, err))
			mu.Unlock()
			return nil
		}
		g.Go(func() error {
			err := op.process(p, path, dst)
			if err != nil {
				p.logger().Warn("processing failed", zap.String("path", path), zap.Error(err))
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", path, err))
				mu.Unlock()
				return nil
			}
			p.logger().Debug("image processed", zap.String("path", path), zap.String("dst", dst))
			return nil
		})
		return nil
	})
	_ = g.Wait() // workers collect their failures in errs

	err := errors.Join(errs...)
	if walkErr != nil {
		err = errors.Join(fmt.Errorf("directory walk failed: %w", walkErr), err)
	}
	spinner.StopMsg = statusMsg(err)
	spinner.Stop()

	if err == nil {
		fmt.Fprintf(op.stderr(), "\nThe results have been saved into: %s %s\n",
			utils.DecorateText(op.Dst, utils.SuccessMessage),
			utils.DefaultColor,
		)
	}
	return err
}

// destination returns the result path of the source image found at path
// while walking root. Sources which would end up on the same file, like
// face.png and face.gif saved as PNG, keep their source extension in the
// name. The parent directories are created as needed.
func (p *Processor) destination(root, path, dstDir string, claimed map[string]string) (string, error) {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return "", err
	}
	dir := filepath.Join(dstDir, filepath.Dir(rel))
	name := filepath.Base(rel)

	out := p.outputName(name)
	alt := p.outputName(strings.ReplaceAll(name, ".", "_") + filepath.Ext(name))
	if out != name {
		// A converted result gives way to a source image already named like it.
		if _, err := os.Stat(filepath.Join(filepath.Dir(path), out)); err == nil {
			out = alt
		}
	}
	dst := filepath.Join(dir, out)
	if prev, ok := claimed[dst]; ok {
		dst = filepath.Join(dir, alt)
		if _, taken := claimed[dst]; taken {
			return "", fmt.Errorf("destination %s is already used by %s", dst, prev)
		}
	}
	claimed[dst] = path

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("unable to create the destination directory: %w", err)
	}
	return dst, nil
}

// outputName returns the destination file name of a source image found in a
// directory. Images which cannot be encoded are saved as PNG.
func (p *Processor) outputName(name string) string {
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	switch {
	case strings.EqualFold(p.Format, "json"):
		return base + ".json"
	case isOutputExt(strings.ToLower(ext)):
		return name
	default:
		return base + ".png"
	}
}

// process calls the landmark processor over the source image and returns the
// error in case exists. The destination file is removed on failure.
func (op *Ops) process(p *Processor, in, out string) error {
	src, dst, err := op.pathToFile(in, out)
	if err != nil {
		return err
	}

	defer func() {
		if f, ok := src.(*os.File); ok && f != os.Stdin {
			if err := f.Close(); err != nil {
				p.logger().Warn("could not close the opened file", zap.Error(err))
			}
		}
	}()

	err = p.Process(src, dst)
	if f, ok := dst.(*os.File); ok && f != os.Stdout {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			// Remove the generated file in case of an error.
			os.Remove(f.Name())
		}
	}
	return err
}

// pathToFile converts the source and destination paths to readable and writable files.
func (op *Ops) pathToFile(in, out string) (io.Reader, io.Writer, error) {
	var (
		src io.Reader
		dst io.Writer
	)
	// Check if the source is a pipe name or a regular file.
	if in == op.PipeName {
		if term.IsTerminal(int(os.Stdin.Fd())) {
			return nil, nil, errors.New("`-` should be used with a pipe for stdin")
		}
		src = os.Stdin
	} else {
		f, err := os.Open(in)
		if err != nil {
			return nil, nil, fmt.Errorf("unable to open the source file: %w", err)
		}
		src = f
	}

	// Check if the destination is a pipe name or a regular file.
	if out == op.PipeName {
		if term.IsTerminal(int(os.Stdout.Fd())) {
			closeReader(src)
			return nil, nil, errors.New("`-` should be used with a pipe for stdout")
		}
		dst = os.Stdout
	} else {
		f, err := os.OpenFile(out, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
		if err != nil {
			closeReader(src)
			return nil, nil, fmt.Errorf("unable to create the destination file: %w", err)
		}
		dst = f
	}
	return src, dst, nil
}

func closeReader(r io.Reader) {
	if f, ok := r.(*os.File); ok && f != os.Stdin {
		f.Close()
	}
}

// printOpStatus displays the relevant information about the processed image.
func (op *Ops) printOpStatus(fname string, err error) {
	if err != nil {
		fmt.Fprint(op.stderr(),
			utils.DecorateText("\nError locating the landmarks: ", utils.ErrorMessage),
			utils.DecorateText(fmt.Sprintf("\n\tReason: %v\n", err), utils.DefaultMessage),
		)
		return
	}
	if fname != op.PipeName {
		fmt.Fprintf(op.stderr(), "\nThe result has been saved as: %s %s\n",
			utils.DecorateText(filepath.Base(fname), utils.SuccessMessage),
			utils.DefaultColor,
		)
	}
}

func statusMsg(err error) string {
	if err != nil {
		return fmt.Sprintf("%s %s %s",
			utils.DecorateText("⚡ SHAPELOC", utils.StatusMessage),
			utils.DecorateText("locating the landmarks failed...", utils.DefaultMessage),
			utils.DecorateText("✘", utils.ErrorMessage),
		)
	}
	return fmt.Sprintf("%s %s %s",
		utils.DecorateText("⚡ SHAPELOC", utils.StatusMessage),
		utils.DecorateText("⇢", utils.DefaultMessage),
		utils.DecorateText("the landmarks have been located successfully ✔", utils.SuccessMessage),
	)
}

// isOutputExt checks for the supported destination extensions.
func isOutputExt(ext string) bool {
	switch ext {
	case ".jpg", ".jpeg", ".png", ".bmp", ".json":
		return true
	}
	return false
}
