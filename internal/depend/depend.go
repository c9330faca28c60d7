// Package depend orders templates so that nested instantiation is
// reconciled inside-out.
package depend

import (
	"errors"
	"fmt"
	"strings"

	"github.com/agentic-research/stencil/internal/graph"
)

var ErrCyclicInstantiation = errors.New("cyclic instantiation")

// CycleError names the templates on the offending cycle.
type CycleError struct {
	Cycle []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("%s: %s", ErrCyclicInstantiation, strings.Join(e.Cycle, " -> "))
}

func (e *CycleError) Unwrap() error { return ErrCyclicInstantiation }

type walker struct {
	store   *graph.Store
	visited map[string]bool
	onStack map[string]int
	stack   []string
	order   []string
}

// Order returns the dependency order: a template T is emitted after every
// template P that embeds a top-level instance of T. Templates without a
// relation keep store insertion order.
func Order(s *graph.Store) ([]string, error) {
	w := &walker{store: s, visited: map[string]bool{}, onStack: map[string]int{}}
	for _, t := range s.Templates() {
		if err := w.visit(t.ID); err != nil {
			return nil, err
		}
	}
	return w.order, nil
}

// ProcessingOrder is Order reversed: most depended-upon templates first.
func ProcessingOrder(s *graph.Store) ([]string, error) {
	order, err := Order(s)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(order)-1; i < j; i, j = i+1, j-1 {
		order[i], order[j] = order[j], order[i]
	}
	return order, nil
}

// Embedding returns the templates that directly contain a top-level
// instance of tmpl, in instance insertion order.
func Embedding(s *graph.Store, tmpl string) []string {
	var out []string
	seen := map[string]bool{}
	for _, inst := range s.Instances(tmpl) {
		if s.EnclosingInstance(inst) != "" {
			continue
		}
		p := s.ContainingTemplate(inst)
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}

// visit is an explicit-stack DFS producing post-order.
func (w *walker) visit(root string) error {
	type frame struct {
		id   string
		next []string
	}
	if w.visited[root] {
		return nil
	}
	frames := []frame{{root, Embedding(w.store, root)}}
	w.enter(root)
	for len(frames) > 0 {
		top := &frames[len(frames)-1]
		if len(top.next) == 0 {
			w.leave(top.id)
			frames = frames[:len(frames)-1]
			continue
		}
		p := top.next[0]
		top.next = top.next[1:]
		if w.visited[p] {
			continue
		}
		if i, ok := w.onStack[p]; ok {
			cycle := append(append([]string(nil), w.stack[i:]...), p)
			return &CycleError{Cycle: cycle}
		}
		w.enter(p)
		frames = append(frames, frame{p, Embedding(w.store, p)})
	}
	return nil
}

func (w *walker) enter(id string) {
	w.onStack[id] = len(w.stack)
	w.stack = append(w.stack, id)
}

func (w *walker) leave(id string) {
	delete(w.onStack, id)
	w.stack = w.stack[:len(w.stack)-1]
	w.visited[id] = true
	w.order = append(w.order, id)
}

// WouldCycle reports whether placing a top-level instance of tmpl inside
// the template host would make instantiation cyclic.
func WouldCycle(s *graph.Store, tmpl, host string) bool {
	if host == "" {
		return false
	}
	if host == tmpl {
		return true
	}
	// The new edge tmpl -> host closes a cycle when tmpl is reachable from host.
	seen := map[string]bool{host: true}
	stack := []string{host}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, p := range Embedding(s, cur) {
			if p == tmpl {
				return true
			}
			if !seen[p] {
				seen[p] = true
				stack = append(stack, p)
			}
		}
	}
	return false
}
