// Command decode runs a model on an image file, decodes its outputs with
// the matching postprocess decoder and prints the results.
//
// The model may be a YAML replay dump, an RKNN compiled model or an ONNX
// model, selected by file extension.
package main

import (
	"flag"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/swdee/go-edgedecode"
	"github.com/swdee/go-edgedecode/onnx"
	"github.com/swdee/go-edgedecode/postprocess"
	"github.com/swdee/go-edgedecode/postprocess/result"
	"github.com/swdee/go-edgedecode/preprocess"
	"github.com/swdee/go-edgedecode/render"
	"github.com/swdee/go-edgedecode/replay"
	"github.com/swdee/go-edgedecode/rknn"
	"github.com/swdee/go-edgedecode/rknn/affinity"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
	"gopkg.in/yaml.v3"
)

// config is the YAML tool configuration
type config struct {
	ScoreThreshold   uint8  `yaml:"score_threshold"`
	IoUThreshold     uint8  `yaml:"iou_threshold"`
	MaxResults       int    `yaml:"max_results"`
	NormalizedCoords bool   `yaml:"normalized_coords"`
	Labels           string `yaml:"labels"`
	Iterations       int    `yaml:"iterations"`
	OnnxLibrary      string `yaml:"onnx_library"`
}

func defaultConfig() config {

	c := postprocess.DefaultConfig()

	return config{
		ScoreThreshold: c.ScoreThreshold,
		IoUThreshold:   c.IoUThreshold,
		MaxResults:     100,
		Iterations:     1,
	}
}

// loadConfig reads the YAML config file over the defaults
func loadConfig(file string) (config, error) {

	cfg := defaultConfig()

	if file == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(file)

	if err != nil {
		return cfg, errors.Wrap(err, "error reading config file")
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrap(err, "error parsing config file")
	}

	return cfg, nil
}

// engine is an edgedecode.Engine together with its release function
type engine struct {
	edgedecode.Engine
	close func() error
}

// openEngine loads the model file with the engine matching its extension
func openEngine(file string, cfg config, log *zap.Logger) (engine, error) {

	switch strings.ToLower(filepath.Ext(file)) {
	case ".yaml", ".yml":
		e, err := replay.Load(file)

		if err != nil {
			return engine{}, err
		}

		return engine{Engine: e, close: func() error { return nil }}, nil

	case ".rknn":
		rt, err := rknn.NewRuntime(file, rknn.NPUCoreAuto, rknn.WithLogger(log))

		if err != nil {
			return engine{}, err
		}

		return engine{Engine: rt, close: rt.Close}, nil

	case ".onnx":
		e, err := onnx.New(file, onnx.WithLibraryPath(cfg.OnnxLibrary), onnx.WithLogger(log))

		if err != nil {
			return engine{}, err
		}

		return engine{Engine: e, close: e.Close}, nil
	}

	return engine{}, errors.Wrapf(edgedecode.ErrNotSupported, "model file %s", file)
}

// readImage decodes a JPEG or PNG file into an RGB888 frame
func readImage(file string) (*edgedecode.Image, error) {

	f, err := os.Open(file)

	if err != nil {
		return nil, errors.Wrap(err, "error opening image")
	}

	defer f.Close()

	img, _, err := image.Decode(f)

	if err != nil {
		return nil, errors.Wrap(err, "error decoding image")
	}

	return preprocess.FromImage(img), nil
}

func main() {

	modelFile := flag.String("m", "../data/model.yaml", "Model file, a .yaml replay dump, .rknn or .onnx model")
	imgFile := flag.String("i", "", "Image file to decode, when empty the engine inputs are used as is")
	configFile := flag.String("c", "", "YAML config file")
	typeName := flag.String("t", "", "Decoder to use, detected from the model shapes when empty")
	iterations := flag.Int("n", 0, "Number of decode cycles, overrides the config file")
	verbose := flag.Bool("v", false, "Verbose logging")
	platform := flag.String("p", "", "Pin to the fast CPU cores of platform rk3562|rk3566|rk3568|rk3576|rk3582|rk3588")
	dumpFile := flag.String("d", "", "Write a replay dump of the model outputs to this file")
	outFile := flag.String("o", "", "Write the image annotated with the results to this file")

	flag.Parse()

	var log *zap.Logger
	var err error

	if *verbose {
		log, err = zap.NewDevelopment()
	} else {
		log, err = zap.NewProduction()
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, "error creating logger:", err)
		os.Exit(1)
	}

	defer log.Sync()

	cfg, err := loadConfig(*configFile)

	if err != nil {
		log.Fatal("loading config", zap.Error(err))
	}

	if *iterations > 0 {
		cfg.Iterations = *iterations
	}

	if *platform != "" {
		if err := affinity.SetByPlatform(*platform, affinity.FastCores); err != nil {
			log.Fatal("setting cpu affinity", zap.Error(err))
		}
	}

	var labels []string

	if cfg.Labels != "" {
		labels, err = edgedecode.LoadLabels(cfg.Labels)

		if err != nil {
			log.Fatal("loading labels", zap.Error(err))
		}
	}

	eng, err := openEngine(*modelFile, cfg, log)

	if err != nil {
		log.Fatal("opening model", zap.String("model", *modelFile), zap.Error(err))
	}

	defer eng.close()

	if rt, ok := eng.Engine.(*rknn.Runtime); ok && *verbose {
		rt.Query(os.Stderr)
	}

	typ := postprocess.TypeUndefined

	if *typeName != "" {
		typ, err = postprocess.ParseType(*typeName)

		if err != nil {
			log.Fatal("selecting decoder", zap.Error(err))
		}
	}

	dec, err := postprocess.New(typ, eng,
		postprocess.WithLogger(log),
		postprocess.WithConfig(postprocess.Config{
			ScoreThreshold: cfg.ScoreThreshold,
			IoUThreshold:   cfg.IoUThreshold,
		}),
		postprocess.WithMaxResults(cfg.MaxResults),
		postprocess.WithNormalizedCoords(cfg.NormalizedCoords),
	)

	if err != nil {
		log.Fatal("creating decoder", zap.Error(err))
	}

	var frame *edgedecode.Image

	if *imgFile != "" {
		frame, err = readImage(*imgFile)

		if err != nil {
			log.Fatal("reading image", zap.Error(err))
		}
	}

	log.Info("decoding", zap.String("decoder", dec.Info().Name), zap.Int("iterations", cfg.Iterations))

	for i := 0; i < cfg.Iterations; i++ {

		if err := dec.Run(frame); err != nil {
			log.Fatal("decode cycle failed",
				zap.Int("iteration", i),
				zap.Stringer("code", edgedecode.CodeOf(err)),
				zap.Error(err),
			)
		}

		fmt.Printf("cycle %d: preprocess=%s run=%s postprocess=%s\n", i,
			dec.PreprocessTime(), dec.RunTime(), dec.PostprocessTime())
	}

	printResults(os.Stdout, dec, labels)

	if *outFile != "" && frame != nil {
		if err := writeAnnotated(*outFile, frame, dec, labels); err != nil {
			log.Fatal("writing annotated image", zap.Error(err))
		}
	}

	if *dumpFile != "" {
		if err := replay.Capture(filepath.Base(*modelFile), eng).Save(*dumpFile); err != nil {
			log.Fatal("writing dump", zap.Error(err))
		}
	}
}

// printResults writes the results of the last cycle of dec to w
func printResults(w io.Writer, dec postprocess.Decoder, labels []string) {

	switch d := dec.(type) {
	case *postprocess.Classifier:
		for _, c := range d.Results() {
			fmt.Fprintf(w, "%s %d%%\n", edgedecode.Label(labels, int(c.Target)), c.Score)
		}

	case *postprocess.Landmark:
		for _, k := range d.Results() {
			fmt.Fprintf(w, "point %d @ (%d %d)\n", k.Target, k.X, k.Y)
		}

	case *postprocess.Pose:
		for _, p := range d.Results() {
			fmt.Fprintf(w, "%s @ (%d %d %d %d) %d%%\n", edgedecode.Label(labels, int(p.Box.Target)),
				p.Box.Left(), p.Box.Top(), p.Box.Right(), p.Box.Bottom(), p.Box.Score)

			for _, k := range p.KeyPoints {
				fmt.Fprintf(w, "  point %d @ (%d %d) visibility %d%%\n", k.Target, k.X, k.Y, k.Visibility)
			}
		}

	case interface{ Results() []result.Box }:
		for _, b := range d.Results() {
			fmt.Fprintf(w, "%s @ (%d %d %d %d) %d%%\n", edgedecode.Label(labels, int(b.Target)),
				b.Left(), b.Top(), b.Right(), b.Bottom(), b.Score)
		}
	}
}

// writeAnnotated draws the results of dec over frame and saves it to file
func writeAnnotated(file string, frame *edgedecode.Image, dec postprocess.Decoder,
	labels []string) error {

	rgb, err := gocv.NewMatFromBytes(frame.Height, frame.Width, gocv.MatTypeCV8UC3, frame.Data)

	if err != nil {
		return errors.Wrap(err, "error wrapping frame")
	}

	defer rgb.Close()

	img := gocv.NewMat()
	defer img.Close()

	gocv.CvtColor(rgb, &img, gocv.ColorRGBToBGR)

	font := render.DefaultFont()

	switch d := dec.(type) {
	case *postprocess.Pose:
		render.Poses(&img, d.Results(), labels, font, 2, 50)

	case *postprocess.Landmark:
		render.Landmarks(&img, d.Results(), 3)

	case interface{ Results() []result.Box }:
		render.Boxes(&img, d.Results(), labels, font, 2)
	}

	if ok := gocv.IMWrite(file, img); !ok {
		return errors.Errorf("error writing %s", file)
	}

	return nil
}
