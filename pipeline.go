package colorcycle

import (
	"context"
	"errors"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const workers = 10

func findFiles(ctx context.Context, base string) (<-chan string, <-chan error, error) {
	out := make(chan string)
	errc := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(errc)
		errc <- filepath.Walk(base, func(file string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}

			// Ignore any hidden files or directories, otherwise we end up fighting with things like Spotlight, etc.
			if info.Name()[0] == '.' && file != base {
				if info.Mode().IsDir() {
					return filepath.SkipDir
				}
				return nil
			}

			// Ignore anything that isn't a normal file
			if !info.Mode().IsRegular() {
				return nil
			}

			// Ignore any file greater than 16 MB
			if info.Size() > 16<<(10*2) {
				return nil
			}

			if strings.ToLower(filepath.Ext(file)) != ".json" {
				return nil
			}

			select {
			case out <- file:
			case <-ctx.Done():
				return errors.New("walk cancelled")
			}

			return nil
		})
	}()
	return out, errc, nil
}

func (l *Library) fileWorker(ctx context.Context, in <-chan string) (<-chan error, error) {
	errc := make(chan error, 1)
	go func() {
		defer close(errc)
		for file := range in {
			b, err := ioutil.ReadFile(file)
			if err != nil {
				errc <- err
				return
			}

			name := strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))

			tl := isTimeline(b)
			m, err := decode(b, tl)
			if err != nil {
				l.logger.Printf("Skipping \"%s\": %v\n", file, err)
				continue
			}

			if _, err := l.store(name, tl, b, m); err != nil {
				errc <- err
				return
			}
			l.logger.Printf("Imported \"%s\" as \"%s\"\n", file, name)
		}
	}()
	return errc, nil
}

func (l *Library) infoWorker(ctx context.Context, in <-chan ImageInfo) (<-chan error, error) {
	errc := make(chan error, 1)
	go func() {
		defer close(errc)
		for info := range in {
			if _, err := l.record(ctx, info); err != nil {
				if ctx.Err() != nil {
					errc <- ctx.Err()
					return
				}
				l.logger.Printf("\"%s\" failed to download: %v\n", info.Name, err)
			}
		}
	}()
	return errc, nil
}

func waitForPipeline(errs ...<-chan error) error {
	errc := mergeErrors(errs...)
	for err := range errc {
		if err != nil {
			return err
		}
	}
	return nil
}

func mergeErrors(cs ...<-chan error) <-chan error {
	var wg sync.WaitGroup
	out := make(chan error, len(cs))
	wg.Add(len(cs))
	for _, c := range cs {
		go func(c <-chan error) {
			for n := range c {
				out <- n
			}
			wg.Done()
		}(c)
	}
	go func() {
		wg.Wait()
		close(out)
	}()
	return out
}

// Import adds every descriptor file found under path to the database,
// named after the file. Files that aren't valid descriptors are skipped.
func (l *Library) Import(path string) error {
	dir, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	ctx, cancelFunc := context.WithCancel(context.Background())
	defer cancelFunc()

	var errcList []<-chan error

	files, errc, err := findFiles(ctx, dir)
	if err != nil {
		return err
	}
	errcList = append(errcList, errc)

	for i := 0; i < workers; i++ {
		errc, err := l.fileWorker(ctx, files)
		if err != nil {
			return err
		}
		errcList = append(errcList, errc)
	}

	return waitForPipeline(errcList...)
}

// Preload fetches every image in infos that isn't already in the database.
// Images that fail to download are logged and skipped.
func (l *Library) Preload(ctx context.Context, infos []ImageInfo) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	in := make(chan ImageInfo)
	errc := make(chan error, 1)
	go func() {
		defer close(in)
		defer close(errc)
		seen := make(map[string]struct{}, len(infos))
		for _, info := range infos {
			if _, ok := seen[info.ID]; ok {
				continue
			}
			seen[info.ID] = struct{}{}
			select {
			case in <- info:
			case <-ctx.Done():
				errc <- ctx.Err()
				return
			}
		}
	}()

	errcList := []<-chan error{errc}
	for i := 0; i < workers; i++ {
		errc, err := l.infoWorker(ctx, in)
		if err != nil {
			return err
		}
		errcList = append(errcList, errc)
	}

	return waitForPipeline(errcList...)
}
