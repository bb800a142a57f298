package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/esimov/shapeloc"
	"github.com/esimov/shapeloc/cache"
	"github.com/esimov/shapeloc/overlay"
	"github.com/esimov/shapeloc/utils"
	"go.uber.org/zap"
)

const HelpBanner = `
╔═╗╦ ╦╔═╗╔═╗╔═╗╦  ╔═╗╔═╗
╚═╗╠═╣╠═╣╠═╝║╣ ║  ║ ║║
╚═╝╩ ╩╩ ╩╩  ╚═╝╩═╝╚═╝╚═╝

Facial landmark localization with ensembles of regression trees.
    Version: %s

`

// pipeName is the file name that indicates stdin/stdout is being used.
const pipeName = "-"

// Version indicates the current build version.
var Version string

func main() {
	log.SetFlags(0)

	cfg, err := parseConfig(os.Args[1:], os.Stderr, func(fs *flag.FlagSet) {
		fmt.Fprintf(os.Stderr, HelpBanner, Version)
		fs.PrintDefaults()
	})
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fatal("Invalid options: ", err)
	}

	logger, err := newLogger(cfg.LogLevel, cfg.LogFile, os.Stderr)
	if err != nil {
		fatal("Invalid options: ", err)
	}
	defer logger.Sync()

	if cfg.Model == "" {
		fmt.Fprintf(os.Stderr, HelpBanner, Version)
		fatal("Please provide a shape predictor model with the -model flag!", nil)
	}

	if cfg.Convert != "" {
		if err := convert(cfg, logger); err != nil {
			fatal("Error converting the model: ", err)
		}
		return
	}

	proc, err := newProcessor(cfg, logger)
	if err != nil {
		fatal("Error initializing the processor: ", err)
	}

	// Capture CTRL-C signal and restore the cursor visibility back.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-signalChan
		cancel()
		proc.Spinner.RestoreCursor()
		os.Exit(1)
	}()

	err = proc.Execute(ctx, &shapeloc.Ops{
		Src:      cfg.Source,
		Dst:      cfg.Destination,
		PipeName: pipeName,
		Workers:  cfg.Workers,
	})
	if err != nil {
		fatal("Error locating the landmarks: ", err)
	}
}

// convert stores the dlib model given by -model in the cache format.
func convert(cfg *config, logger *zap.Logger) error {
	c, err := cache.ParseCompression(cfg.Compress)
	if err != nil {
		return err
	}

	now := time.Now()
	m, err := shapeloc.Convert(cfg.Model, cfg.Convert, cache.WithCompression(c))
	if err != nil {
		return err
	}
	logger.Info("model converted",
		zap.String("path", cfg.Convert),
		zap.Int("landmarks", m.NumLandmarks()),
		zap.Int("trees", m.NumTrees()),
		zap.Stringer("compression", c),
		zap.Duration("elapsed", time.Since(now)),
	)
	fmt.Fprintf(os.Stderr, "\nThe model has been saved as: %s %s\n",
		utils.DecorateText(cfg.Convert, utils.SuccessMessage),
		utils.DefaultColor,
	)
	return nil
}

// newProcessor wires the predictor, the optional face detector and the drawer.
func newProcessor(cfg *config, logger *zap.Logger) (*shapeloc.Processor, error) {
	registry, err := shapeloc.NewRegistry(1)
	if err != nil {
		return nil, err
	}
	predictor, err := registry.Predictor(cfg.Model)
	if err != nil {
		return nil, err
	}
	logger.Debug("model loaded",
		zap.String("path", cfg.Model),
		zap.Int("landmarks", predictor.NumLandmarks()),
		zap.Int("trees", predictor.Model().NumTrees()),
	)

	spinnerText := fmt.Sprintf("%s %s",
		utils.DecorateText("⚡ SHAPELOC", utils.StatusMessage),
		utils.DecorateText("⇢ locating facial landmarks...", utils.DefaultMessage))

	proc := &shapeloc.Processor{
		Predictor: predictor,
		Format:    cfg.Format,
		Logger:    logger,
		Spinner:   utils.NewSpinner(spinnerText, time.Millisecond*80, true),
	}

	if cfg.Rect != "" {
		if proc.Region, err = parseRect(cfg.Rect); err != nil {
			return nil, err
		}
	} else if cfg.FaceDetect {
		if cfg.Cascade == "" {
			return nil, errors.New("please specify a face classifier in case you are using the -face flag")
		}
		if proc.Detector, err = shapeloc.LoadFaceDetector(cfg.Cascade); err != nil {
			return nil, err
		}
		proc.Detector.Angle = cfg.FaceAngle
	}

	if proc.Drawer, err = newDrawer(cfg); err != nil {
		return nil, err
	}
	return proc, nil
}

// newDrawer returns the annotation drawer set up with the colors and the
// composition options given on the command line.
func newDrawer(cfg *config) (*shapeloc.Drawer, error) {
	var err error
	d := shapeloc.NewDrawer()
	if d.PointColor, err = utils.HexToRGBA(cfg.PointColor); err != nil {
		return nil, err
	}
	if d.LineColor, err = utils.HexToRGBA(cfg.LineColor); err != nil {
		return nil, err
	}
	if d.Op, err = overlay.ParseOp(cfg.Op); err != nil {
		return nil, err
	}
	if d.Blend, err = overlay.ParseBlendMode(cfg.Blend); err != nil {
		return nil, err
	}
	return d, nil
}

// fatal prints the decorated error message and exits.
func fatal(msg string, err error) {
	if err == nil {
		log.Fatal(utils.DecorateText(msg, utils.ErrorMessage))
	}
	log.Fatal(
		utils.DecorateText(msg, utils.ErrorMessage),
		utils.DecorateText(fmt.Sprintf("\n\tReason: %v\n", err), utils.DefaultMessage),
	)
}
