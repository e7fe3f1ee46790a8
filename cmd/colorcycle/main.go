package main

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io/ioutil"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/bodgit/colorcycle"
	"github.com/bodgit/colorcycle/cycle"
	"github.com/bodgit/colorcycle/indexed"
	"github.com/bodgit/colorcycle/screen"
	"github.com/bodgit/colorcycle/thumbnail"
	"github.com/bodgit/colorcycle/timeline"
	"github.com/gdamore/tcell/v2"
	"github.com/lucasb-eyer/go-colorful"
	"github.com/urfave/cli/v2"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
)

const defaultDB = "colorcycle.db"

func init() {
	cli.VersionFlag = &cli.BoolFlag{
		Name:    "version",
		Aliases: []string{"V"},
		Usage:   "print the version",
	}
}

func newLogger(c *cli.Context) *log.Logger {
	logger := log.New(ioutil.Discard, "", 0)
	if c.Bool("verbose") {
		logger.SetOutput(os.Stderr)
	}
	return logger
}

func openLibrary(c *cli.Context) (*colorcycle.Library, error) {
	fetcher := colorcycle.NewHTTPFetcher()
	fetcher.ImageURL = c.String("url")
	fetcher.TimelineURL = c.String("timeline-url")

	return colorcycle.New(c.String("db"), fetcher, newLogger(c))
}

// open returns the image or timeline named by arg, which is either a
// descriptor file or the id of an image in the library
func open(c *cli.Context, arg string) (*indexed.Image, *timeline.Timeline, error) {
	if info, err := os.Stat(arg); err == nil && info.Mode().IsRegular() {
		f, err := os.Open(arg)
		if err != nil {
			return nil, nil, err
		}
		defer f.Close()

		return colorcycle.Decode(f)
	}

	l, err := openLibrary(c)
	if err != nil {
		return nil, nil, err
	}
	defer l.Close()

	return l.Open(context.Background(), colorcycle.ImageInfo{
		ID:       arg,
		Name:     arg,
		Timeline: c.Bool("timeline"),
	})
}

func timeOfDay(c *cli.Context) (time.Duration, error) {
	if c.IsSet("time-of-day") {
		return timeline.ParseLabel(c.String("time-of-day"))
	}
	h, m, s := time.Now().Clock()
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute + time.Duration(s)*time.Second, nil
}

// resolve returns the image named by the first argument, with any timeline
// resolved at the requested time of day
func resolve(c *cli.Context) (*indexed.Image, *timeline.Timeline, error) {
	m, t, err := open(c, c.Args().First())
	if err != nil {
		return nil, nil, err
	}
	if t != nil {
		d, err := timeOfDay(c)
		if err != nil {
			return nil, nil, err
		}
		m = t.At(d)
	}
	return m, t, nil
}

func create(file string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(file), 0755); err != nil {
		return nil, err
	}
	return os.Create(file)
}

func loadCatalog(file string) ([]colorcycle.ImageInfo, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	collections, err := colorcycle.ParseCollections(f)
	if err != nil {
		return nil, err
	}

	var infos []colorcycle.ImageInfo
	for _, collection := range collections {
		infos = append(infos, collection.Images...)
	}
	return infos, nil
}

func fetch(c *cli.Context) error {
	var infos []colorcycle.ImageInfo
	if c.IsSet("catalog") {
		catalog, err := loadCatalog(c.String("catalog"))
		if err != nil {
			return err
		}
		if c.NArg() == 0 {
			infos = catalog
		}
		for _, id := range c.Args().Slice() {
			found := false
			for _, info := range catalog {
				if info.ID == id {
					infos = append(infos, info)
					found = true
				}
			}
			if !found {
				return fmt.Errorf("%w: \"%s\" is not in the catalog", colorcycle.ErrNotFound, id)
			}
		}
	} else {
		for _, id := range c.Args().Slice() {
			infos = append(infos, colorcycle.ImageInfo{
				ID:       id,
				Name:     id,
				Timeline: c.Bool("timeline"),
			})
		}
	}

	l, err := openLibrary(c)
	if err != nil {
		return err
	}
	defer l.Close()

	return l.Preload(context.Background(), infos)
}

func list(c *cli.Context) error {
	l, err := openLibrary(c)
	if err != nil {
		return err
	}
	defer l.Close()

	records, err := l.List()
	if err != nil {
		return err
	}

	for _, r := range records {
		kind := "image"
		if r.Timeline {
			kind = "timeline"
		}
		fmt.Printf("%-24s %-8s %10d\n", r.Name, kind, r.Size)
	}
	return nil
}

func render(c *cli.Context) error {
	m, _, err := resolve(c)
	if err != nil {
		return err
	}

	out := c.String("out")
	format, err := thumbnail.FormatFromPath(out)
	if err != nil {
		return err
	}

	frame := indexed.Render(nil, m, m.Palette().Cycle(c.Duration("at").Milliseconds()))

	f, err := create(out)
	if err != nil {
		return err
	}
	defer f.Close()

	return thumbnail.Encode(f, frame, &thumbnail.Options{
		Width:  c.Int("width"),
		Height: c.Int("height"),
		Format: format,
	})
}

func export(c *cli.Context) error {
	m, _, err := resolve(c)
	if err != nil {
		return err
	}

	f, err := create(c.String("out"))
	if err != nil {
		return err
	}
	defer f.Close()

	return colorcycle.ExportGIF(f, m, c.Duration("duration"), c.Int("fps"))
}

func colors(c *cli.Context) error {
	m, _, err := resolve(c)
	if err != nil {
		return err
	}

	for i, rule := range m.Cycles {
		state := "active"
		switch {
		case rule.Mode() == cycle.Disabled:
			state = fmt.Sprintf("unknown mode %d", rule.Reverse)
		case !rule.Active():
			state = "inactive"
		}
		fmt.Printf("cycle %d: %d-%d %s rate %d (%s)\n", i, rule.Low, rule.High, rule.Mode(), rule.Rate, state)
	}

	for i, col := range m.Palette().Cycle(c.Duration("at").Milliseconds()) {
		r, g, b := col.Channels()
		cf := colorful.Color{R: float64(r) / 255, G: float64(g) / 255, B: float64(b) / 255}
		h, s, l := cf.Hsl()
		fmt.Printf("%3d %s hsl(%.0f, %.0f%%, %.0f%%)\n", i, cf.Hex(), h, s*100, l*100)
	}
	return nil
}

func convert(c *cli.Context) error {
	in, err := os.Open(c.Args().Get(0))
	if err != nil {
		return err
	}
	defer in.Close()

	src, _, err := image.Decode(in)
	if err != nil {
		return err
	}

	m, err := indexed.Convert(src, c.Int("colors"), c.Bool("dither"))
	if err != nil {
		return err
	}
	m.Filename = filepath.Base(c.Args().Get(0))

	out, err := create(c.Args().Get(1))
	if err != nil {
		return err
	}
	defer out.Close()

	return indexed.Encode(out, m)
}

func background(c *cli.Context) (tcell.Color, error) {
	cf, err := colorful.Hex(c.String("background"))
	if err != nil {
		return tcell.ColorDefault, err
	}
	r, g, b := cf.RGB255()
	return tcell.NewRGBColor(int32(r), int32(g), int32(b)), nil
}

func play(c *cli.Context) error {
	m, t, err := resolve(c)
	if err != nil {
		return err
	}

	fps := c.Int("fps")
	if fps < 1 {
		return errors.New("fps must be at least 1")
	}

	bg, err := background(c)
	if err != nil {
		return err
	}

	s, err := tcell.NewScreen()
	if err != nil {
		return err
	}
	if err := s.Init(); err != nil {
		return err
	}
	defer s.Fini()

	logger := newLogger(c)
	engine := colorcycle.NewEngine(logger)
	if err := engine.SetImage(m); err != nil {
		return err
	}
	sink := screen.NewSink(s, bg)
	defer engine.OnFrame(sink.Draw).Unsubscribe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		defer cancel()
		for {
			switch ev := s.PollEvent().(type) {
			case nil:
				return
			case *tcell.EventKey:
				if ev.Key() == tcell.KeyEscape || ev.Key() == tcell.KeyCtrlC || ev.Key() == tcell.KeyRune && ev.Rune() == 'q' {
					return
				}
			case *tcell.EventResize:
				s.Sync()
			}
		}
	}()

	// Follow the time of day unless it was fixed
	if t != nil && !c.IsSet("time-of-day") {
		go func() {
			ticker := time.NewTicker(time.Minute)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case now := <-ticker.C:
					if err := engine.Update(t.AtTime(now)); err != nil {
						logger.Printf("Unable to update timeline: %v\n", err)
					}
				}
			}
		}()
	}

	engine.Start()
	defer engine.Stop()

	if err := engine.Run(ctx, colorcycle.NewTicker(time.Second/time.Duration(fps))); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func atFlag() cli.Flag {
	return &cli.DurationFlag{
		Name:  "at",
		Usage: "animation time to render",
	}
}

func todFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "time-of-day",
		Usage: "resolve timelines at `TIME` rather than now, as HH:MM or seconds since midnight",
	}
}

// action wraps fn so its errors become exit codes, checking there are at
// least n arguments
func action(n int, fn func(*cli.Context) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		if c.NArg() < n {
			cli.ShowCommandHelpAndExit(c, c.Command.FullName(), 1)
		}
		if err := fn(c); err != nil {
			return cli.NewExitError(err, 1)
		}
		return nil
	}
}

func main() {
	app := cli.NewApp()

	app.Name = "colorcycle"
	app.Usage = "Palette cycling image utility"
	app.Version = "1.0.0"

	cwd, err := os.Getwd()
	if err != nil {
		log.Fatal(err)
	}

	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "db",
			EnvVars: []string{"COLORCYCLE_DB"},
			Value:   filepath.Join(cwd, defaultDB),
			Usage:   "path to database",
		},
		&cli.StringFlag{
			Name:  "url",
			Value: colorcycle.DefaultImageURL,
			Usage: "URL prefix for fetching images",
		},
		&cli.StringFlag{
			Name:  "timeline-url",
			Value: colorcycle.DefaultTimelineURL,
			Usage: "URL prefix for fetching timeline images",
		},
		&cli.BoolFlag{
			Name:  "timeline",
			Usage: "fetch images by id as timelines",
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"v"},
			Usage:   "increase verbosity",
		},
	}

	app.Commands = []*cli.Command{
		{
			Name:        "import",
			Usage:       "Import descriptor files",
			Description: "Adds every .json descriptor found under PATH to the database, named after the file",
			ArgsUsage:   "PATH",
			Action: action(1, func(c *cli.Context) error {
				l, err := openLibrary(c)
				if err != nil {
					return err
				}
				defer l.Close()

				return l.Import(c.Args().First())
			}),
		},
		{
			Name:        "fetch",
			Usage:       "Download images into the database",
			Description: "Downloads the images with the given ids, or every image in the catalog if none are given",
			ArgsUsage:   "[ID...]",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:  "catalog",
					Usage: "collections `FILE` listing images to fetch",
				},
			},
			Action: action(0, fetch),
		},
		{
			Name:   "list",
			Usage:  "List images in the database",
			Action: action(0, list),
		},
		{
			Name:      "render",
			Usage:     "Render a single frame",
			ArgsUsage: "NAME|FILE",
			Flags: []cli.Flag{
				atFlag(),
				todFlag(),
				&cli.StringFlag{
					Name:  "out",
					Value: "frame.png",
					Usage: "output `FILE`, format chosen by extension",
				},
				&cli.IntFlag{
					Name:  "width",
					Usage: "maximum width, 0 for original",
				},
				&cli.IntFlag{
					Name:  "height",
					Usage: "maximum height, 0 for original",
				},
			},
			Action: action(1, render),
		},
		{
			Name:      "export",
			Usage:     "Export the animation as a GIF",
			ArgsUsage: "NAME|FILE",
			Flags: []cli.Flag{
				todFlag(),
				&cli.DurationFlag{
					Name:  "duration",
					Value: 10 * time.Second,
					Usage: "length of the animation",
				},
				&cli.IntFlag{
					Name:  "fps",
					Value: 20,
					Usage: "frames per second",
				},
				&cli.StringFlag{
					Name:  "out",
					Value: "animation.gif",
					Usage: "output `FILE`",
				},
			},
			Action: action(1, export),
		},
		{
			Name:      "colors",
			Usage:     "Print the cycles and cycled palette",
			ArgsUsage: "NAME|FILE",
			Flags:     []cli.Flag{atFlag(), todFlag()},
			Action:    action(1, colors),
		},
		{
			Name:      "convert",
			Usage:     "Convert an ordinary image into a descriptor",
			ArgsUsage: "IN OUT",
			Flags: []cli.Flag{
				&cli.IntFlag{
					Name:  "colors",
					Value: 256,
					Usage: "maximum number of colors",
				},
				&cli.BoolFlag{
					Name:  "dither",
					Usage: "dither when reducing colors",
				},
			},
			Action: action(2, convert),
		},
		{
			Name:      "play",
			Usage:     "Play the animation in the terminal",
			ArgsUsage: "NAME|FILE",
			Flags: []cli.Flag{
				todFlag(),
				&cli.IntFlag{
					Name:  "fps",
					Value: 30,
					Usage: "frames per second",
				},
				&cli.StringFlag{
					Name:  "background",
					Value: "#000000",
					Usage: "background `COLOR` around the image",
				},
			},
			Action: action(1, play),
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
