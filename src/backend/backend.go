// Package backend drives the lowering of whole programs: every method graph is verified, scheduled and lowered to
// the linear IR, optionally in parallel, and the resulting listings are written in one piece per method.
package backend

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"mjc/src/backend/lower"
	"mjc/src/ir/graph"
	"mjc/src/ir/lir"
	"mjc/src/util"
)

// ----------------------------
// ----- Type definitions -----
// ----------------------------

// Method pairs a method signature with the graph IR of its body.
type Method struct {
	Def   *graph.Method
	Graph *graph.Graph
}

// Result holds the lowered form of one method.
type Result struct {
	Def      *graph.Method
	Linear   *lir.Graph      // Linear IR of the method body.
	Schedule *lower.Schedule // Node order chosen for every block of the graph IR.
}

// ---------------------
// ----- Constants -----
// ---------------------

// -------------------
// ----- Globals -----
// -------------------

// ---------------------
// ----- Functions -----
// ---------------------

// LowerProgram lowers every method of methods, using up to opt.Threads worker threads. The results are returned in
// the order of methods. If any method fails, the errors of all failed methods are joined and returned.
func LowerProgram(opt util.Options, methods []*Method) ([]*Result, error) {
	if err := opt.Validate(); err != nil {
		return nil, err
	}
	if len(opt.DumpDot) > 0 {
		if err := os.MkdirAll(opt.DumpDot, 0o755); err != nil {
			return nil, err
		}
	}
	results := make([]*Result, len(methods))
	if len(methods) == 0 {
		return results, nil
	}

	if opt.Threads > 1 {
		// Parallel.
		t := opt.Threads
		l := len(methods)
		if t > l {
			t = l
		}
		n := l / t   // Jobs per worker go routine.
		res := l % t // Residual jobs.

		start := 0
		end := n

		pe := util.NewPerror(l)
		wg := sync.WaitGroup{}
		wg.Add(t)

		for i1 := 0; i1 < t; i1++ {
			if i1 < res {
				// Worker should do one extra residual job.
				end++
			}

			go func(start, end int, wg *sync.WaitGroup) {
				defer wg.Done()
				for i2 := start; i2 < end; i2++ {
					r, err := lowerMethod(opt, methods[i2])
					if err != nil {
						pe.Append(err)
						continue
					}
					results[i2] = r
				}
			}(start, end, &wg)
			start = end
			end += n
		}
		wg.Wait()
		pe.Stop()
		if pe.Len() > 0 {
			return nil, pe.Err()
		}
		return results, nil
	}

	// Sequential.
	var errs []error
	for i1, e1 := range methods {
		r, err := lowerMethod(opt, e1)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		results[i1] = r
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return results, nil
}

// lowerMethod lowers the graph of m and dumps both representations if requested by opt.
func lowerMethod(opt util.Options, m *Method) (*Result, error) {
	if m.Def == nil || m.Graph == nil {
		return nil, errors.New("method without definition or graph")
	}
	if opt.Verbose {
		log.Printf("lowering method %s: %d node(s), %d block(s)", m.Def.Name, m.Graph.Len(),
			len(m.Graph.Blocks()))
	}
	lg, s, err := lower.Lower(opt, m.Graph)
	if err != nil {
		return nil, fmt.Errorf("method %s: %w", m.Def.Name, err)
	}
	if len(opt.DumpDot) > 0 {
		if err := dump(opt.DumpDot, m.Def.Name, m.Graph, lg, s); err != nil {
			return nil, fmt.Errorf("method %s: %w", m.Def.Name, err)
		}
	}
	if opt.Verbose {
		log.Printf("lowered method %s: %d linear block(s)", m.Def.Name, len(lg.ReversePostorder()))
	}
	return &Result{Def: m.Def, Linear: lg, Schedule: s}, nil
}

// dump writes <name>.graph.dot and <name>.lir.dot to directory dir. Names that could resolve outside dir are
// rejected.
func dump(dir, name string, g *graph.Graph, lg *lir.Graph, s *lower.Schedule) error {
	if len(name) == 0 || strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return fmt.Errorf("method name %q cannot name a dump file", name)
	}
	if err := writeFile(filepath.Join(dir, name+".graph.dot"), func(w io.Writer) error {
		return graph.WriteDot(w, g, s)
	}); err != nil {
		return err
	}
	return writeFile(filepath.Join(dir, name+".lir.dot"), func(w io.Writer) error {
		return lir.WriteDot(w, lg)
	})
}

func writeFile(path string, write func(w io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// WriteProgram writes the linear IR listing of every result to w. Each listing starts with the method name as a
// label. With opt.Verbose set, every instruction is annotated with the registers live after it. Listings are
// produced by up to opt.Threads worker threads; with more than one thread they appear in order of completion.
func WriteProgram(opt util.Options, w io.Writer, results []*Result) error {
	t := opt.Threads
	if t < 1 {
		t = 1
	}
	l := len(results)
	if t > l {
		t = l
	}
	out := util.NewOutput(t, w)
	if l == 0 {
		return out.Close()
	}

	n := l / t   // Jobs per worker go routine.
	res := l % t // Residual jobs.

	start := 0
	end := n

	wg := sync.WaitGroup{}
	wg.Add(t)
	for i1 := 0; i1 < t; i1++ {
		if i1 < res {
			end++
		}
		go func(start, end int, wg *sync.WaitGroup) {
			wr := out.NewWriter()
			defer wg.Done()
			defer wr.Close()

			for _, e1 := range results[start:end] {
				wr.Label(e1.Def.Name)
				if opt.Verbose {
					wr.Write("%s", lir.CalcLiveness(e1.Linear).String(e1.Linear))
				} else {
					wr.Write("%s", e1.Linear.String())
				}
				wr.Flush()
			}
		}(start, end, &wg)
		start = end
		end += n
	}
	wg.Wait()
	return out.Close()
}
