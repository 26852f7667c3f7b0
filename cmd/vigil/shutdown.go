package main

type phase int

// Shutdown phases, run in declaration order. Producers stop before the
// transports they publish to are torn down.
const (
	phaseInputs phase = iota
	phaseEngine
	phaseSinks
	phaseSources
	phaseTelemetry
	phaseCount
)

// shutdown collects cleanup steps as resources come up and runs them by
// phase, so the order does not depend on construction order.
type shutdown struct {
	steps [phaseCount][]func()
}

func (s *shutdown) add(p phase, fn func()) {
	s.steps[p] = append(s.steps[p], fn)
}

// run executes every step once. Within a phase, later steps run first.
func (s *shutdown) run() {
	for p := range s.steps {
		steps := s.steps[p]
		for i := len(steps) - 1; i >= 0; i-- {
			steps[i]()
		}
		s.steps[p] = nil
	}
}
