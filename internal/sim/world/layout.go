package world

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"voxelroute.ai/internal/sim/routing/filter"
	"voxelroute.ai/internal/sim/routing/model"
)

// Layout is an initial world: blocks, nodes and the links between them.
type Layout struct {
	Containers []LayoutContainer `yaml:"containers" validate:"dive"`
	Tanks      []LayoutTank      `yaml:"tanks" validate:"dive"`
	Nodes      []LayoutNode      `yaml:"nodes" validate:"dive"`
	Links      []LayoutLink      `yaml:"links" validate:"dive"`
}

type LayoutContainer struct {
	Pos      [3]int        `yaml:"pos"`
	Slots    int           `yaml:"slots" validate:"min=1,max=256"`
	Contents []model.Stack `yaml:"contents"`
}

type LayoutTank struct {
	Pos      [3]int      `yaml:"pos"`
	Capacity int         `yaml:"capacity" validate:"min=1"`
	Fluid    model.Stack `yaml:"fluid"`
}

type LayoutNode struct {
	Pos    [3]int `yaml:"pos"`
	Kind   string `yaml:"kind" validate:"required"`
	Signal int    `yaml:"signal" validate:"min=0"`

	Sides []LayoutSide `yaml:"sides" validate:"dive"`

	SpeedUpgrades int `yaml:"speed_upgrades" validate:"min=0"`
	StackUpgrades int `yaml:"stack_upgrades" validate:"min=0"`
}

type LayoutSide struct {
	Side     string         `yaml:"side" validate:"required,oneof=down up north south west east DOWN UP NORTH SOUTH WEST EAST"`
	Priority int            `yaml:"priority" validate:"min=0"`
	Filter   *filter.Config `yaml:"filter"`
}

type LayoutLink struct {
	A [3]int `yaml:"a"`
	B [3]int `yaml:"b"`
}

var validate = validator.New()

func LoadLayout(path string) (Layout, error) {
	var l Layout
	raw, err := os.ReadFile(path)
	if err != nil {
		return l, err
	}
	return ParseLayout(raw)
}

func ParseLayout(raw []byte) (Layout, error) {
	var l Layout
	if err := yaml.Unmarshal(raw, &l); err != nil {
		return l, fmt.Errorf("layout: %w", err)
	}
	if err := validate.Struct(l); err != nil {
		return l, fmt.Errorf("layout: %w", err)
	}
	return l, nil
}

// Edits flattens the layout into the edit sequence that builds it: blocks
// first, then nodes with their settings, then links.
func (l Layout) Edits() []Edit {
	var out []Edit
	for _, c := range l.Containers {
		out = append(out, Edit{Op: OpPlaceContainer, Pos: c.Pos, Slots: c.Slots})
		for _, s := range c.Contents {
			out = append(out, Edit{Op: OpDeposit, Pos: c.Pos, Resource: s.ID, Count: s.Count})
		}
	}
	for _, t := range l.Tanks {
		out = append(out, Edit{Op: OpPlaceTank, Pos: t.Pos, Capacity: t.Capacity})
		if !t.Fluid.IsEmpty() {
			out = append(out, Edit{Op: OpDeposit, Pos: t.Pos, Resource: t.Fluid.ID, Count: t.Fluid.Count})
		}
	}
	for _, n := range l.Nodes {
		out = append(out, Edit{Op: OpPlaceNode, Pos: n.Pos, Kind: n.Kind})
		for _, s := range n.Sides {
			if s.Filter != nil {
				out = append(out, Edit{Op: OpSetFilter, Pos: n.Pos, Side: s.Side, Filter: s.Filter})
			}
			if s.Priority != 0 {
				out = append(out, Edit{Op: OpSetPriority, Pos: n.Pos, Side: s.Side, Priority: s.Priority})
			}
		}
		if n.SpeedUpgrades != 0 || n.StackUpgrades != 0 {
			out = append(out, Edit{Op: OpSetUpgrades, Pos: n.Pos, Speed: n.SpeedUpgrades, Stack: n.StackUpgrades})
		}
	}
	for _, lk := range l.Links {
		out = append(out, Edit{Op: OpLink, Pos: lk.A, Other: lk.B})
	}
	// Signals last: a powered node refuses new links.
	for _, n := range l.Nodes {
		if n.Signal > 0 {
			out = append(out, Edit{Op: OpSetSignal, Pos: n.Pos, Signal: n.Signal})
		}
	}
	return out
}

// ApplyLayout builds l into an empty world through the edit path, so every
// link obeys the edit tool's rules. It must be called before Run and does
// not advance game time.
func (w *World) ApplyLayout(l Layout) error {
	if w.nodes.Len() > 0 || len(w.containers) > 0 || len(w.tanks) > 0 {
		return fmt.Errorf("layout: world is not empty")
	}
	for i, e := range l.Edits() {
		res := w.applyEdit(e)
		if err := res.Err(); err != nil {
			return fmt.Errorf("layout edit %d (%s %v): %w", i, e.Op, e.Pos, err)
		}
		if res.Leftover > 0 {
			return fmt.Errorf("layout edit %d (%s %v): %d did not fit", i, e.Op, e.Pos, res.Leftover)
		}
	}
	return nil
}
