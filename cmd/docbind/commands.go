package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	j "github.com/goccy/go-json"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/reoring/docbind/document"
	"github.com/reoring/docbind/internal/config"
	"github.com/reoring/docbind/store"
	"github.com/reoring/docbind/store/query"
)

func commandList() []*command {
	return []*command{
		classesCmd(),
		dumpCmd(),
		getCmd(),
		loadCmd(),
		queryCmd(),
		dropCmd(),
		serveCmd(),
	}
}

func classesCmd() *command {
	return &command{
		name:  "classes",
		usage: "classes",
		run: func(ctx context.Context, e *env, _ []string) error {
			classes, err := e.store.Classes(ctx)
			if err != nil {
				return err
			}
			if classes == nil {
				classes = []store.Class{}
			}
			if e.cfg.Format == config.FormatJSON {
				b, err := j.MarshalIndent(classes, "", "  ")
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(e.stdout, "%s\n", b)
				return err
			}
			enc := yaml.NewEncoder(e.stdout)
			enc.SetIndent(2)
			if err := enc.Encode(classes); err != nil {
				return err
			}
			return enc.Close()
		},
	}
}

// dumpWorkers bounds the classes read concurrently by dump.
const dumpWorkers = 4

func dumpCmd() *command {
	var class string
	return &command{
		name:  "dump",
		usage: "dump [-class C]",
		flags: func(fs *flag.FlagSet, _ *config.CLI) {
			fs.StringVar(&class, "class", "", "dump only this class")
		},
		run: func(ctx context.Context, e *env, _ []string) error {
			names := []string{class}
			if class == "" {
				classes, err := e.store.Classes(ctx)
				if err != nil {
					return err
				}
				names = names[:0]
				for _, c := range classes {
					names = append(names, c.Name)
				}
			}
			perClass := make([][]*document.Document, len(names))
			g, ctx := errgroup.WithContext(ctx)
			g.SetLimit(dumpWorkers)
			for i, name := range names {
				g.Go(func() error {
					docs, err := e.store.Query(ctx, query.Select(name).String())
					perClass[i] = docs
					return err
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}
			return writeDocuments(e.stdout, e.cfg.Format, slices.Concat(perClass...))
		},
	}
}

func getCmd() *command {
	return &command{
		name:  "get",
		usage: "get ID...",
		run: func(ctx context.Context, e *env, args []string) error {
			if len(args) == 0 {
				return fmt.Errorf("get: no identifier given: %w", errUsage)
			}
			docs := make([]*document.Document, 0, len(args))
			for _, arg := range args {
				id, err := document.ParseID(arg)
				if err != nil {
					return err
				}
				doc, err := e.store.Fetch(ctx, id)
				if err != nil {
					return err
				}
				docs = append(docs, doc)
			}
			return writeDocuments(e.stdout, e.cfg.Format, docs)
		},
	}
}

func queryCmd() *command {
	var text string
	return &command{
		name:  "query",
		usage: `query -q "SELECT FROM C [WHERE f = v [AND ...]] [LIMIT n]"`,
		flags: func(fs *flag.FlagSet, _ *config.CLI) {
			fs.StringVar(&text, "q", "", "query text")
		},
		run: func(ctx context.Context, e *env, args []string) error {
			if text == "" {
				text = strings.Join(args, " ")
			}
			if text == "" {
				return fmt.Errorf("query: no query given: %w", errUsage)
			}
			docs, err := e.store.Query(ctx, text)
			if err != nil {
				return err
			}
			return writeDocuments(e.stdout, e.cfg.Format, docs)
		},
	}
}

func dropCmd() *command {
	var class string
	return &command{
		name:  "drop",
		usage: "drop -class C",
		flags: func(fs *flag.FlagSet, _ *config.CLI) {
			fs.StringVar(&class, "class", "", "class to drop")
		},
		run: func(ctx context.Context, e *env, _ []string) error {
			if class == "" {
				return fmt.Errorf("drop: -class is required: %w", errUsage)
			}
			return e.store.DropType(ctx, class)
		},
	}
}

// fixtures is the file format read by load. Classes not listed are inferred
// from the first document that names them.
type fixtures struct {
	Classes   []store.Class        `yaml:"classes"`
	Documents []*document.Document `yaml:"documents"`
}

func loadCmd() *command {
	var file string
	return &command{
		name:  "load",
		usage: "load -f fixtures.yaml",
		flags: func(fs *flag.FlagSet, _ *config.CLI) {
			fs.StringVar(&file, "f", "", "fixture file, - for stdin")
		},
		run: func(ctx context.Context, e *env, _ []string) error {
			if file == "" {
				return fmt.Errorf("load: -f is required: %w", errUsage)
			}
			var r io.Reader = os.Stdin
			if file != "-" {
				f, err := os.Open(file)
				if err != nil {
					return err
				}
				defer f.Close()
				r = f
			}
			fx, err := readFixtures(r)
			if err != nil {
				return fmt.Errorf("load %s: %w", file, err)
			}
			n, err := fx.apply(ctx, e.store)
			if err != nil {
				return fmt.Errorf("load %s: %w", file, err)
			}
			_, err = fmt.Fprintf(e.stdout, "loaded %d documents\n", n)
			return err
		},
	}
}

func readFixtures(r io.Reader) (*fixtures, error) {
	var fx fixtures
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&fx); err != nil {
		if errors.Is(err, io.EOF) {
			return &fx, nil
		}
		return nil, err
	}
	return &fx, nil
}

// apply declares the fixture classes and saves every document, returning the
// number saved.
func (fx *fixtures) apply(ctx context.Context, st store.Store) (int, error) {
	existing, err := st.Classes(ctx)
	if err != nil {
		return 0, err
	}
	declared := make(map[string]bool, len(existing)+len(fx.Classes))
	for _, c := range existing {
		declared[c.Name] = true
	}
	for _, c := range fx.Classes {
		if err := st.DeclareType(ctx, c); err != nil {
			return 0, err
		}
		declared[c.Name] = true
	}
	for i, doc := range fx.Documents {
		if doc == nil || doc.Name == "" {
			return i, fmt.Errorf("document %d has no %s", i, document.KeyName)
		}
		if !declared[doc.Name] {
			if err := st.DeclareType(ctx, store.Infer(doc)); err != nil {
				return i, err
			}
			declared[doc.Name] = true
		}
		if _, err := st.Save(ctx, doc); err != nil {
			return i, err
		}
	}
	return len(fx.Documents), nil
}

// writeDocuments renders docs as a YAML stream or as JSON lines.
func writeDocuments(w io.Writer, format string, docs []*document.Document) error {
	if format == config.FormatJSON {
		for _, d := range docs {
			b, err := d.MarshalJSON()
			if err != nil {
				return err
			}
			if _, err := fmt.Fprintf(w, "%s\n", b); err != nil {
				return err
			}
		}
		return nil
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	for _, d := range docs {
		if err := enc.Encode(d); err != nil {
			return err
		}
	}
	return enc.Close()
}
