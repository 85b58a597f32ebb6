package workflow

import "time"

// Definition describes one workflow type offered by the execution engine.
type Definition struct {
	// Name is the stable key clients submit jobs against.
	Name string
	// Description is the human-readable display name.
	Description string
	// Parameters are the typed non-ESDL parameters, in declaration order.
	Parameters []Parameter
}

// Catalog is the read-only registry of workflow types known to this
// deployment. Safe for concurrent use after construction.
type Catalog struct {
	byName map[string]Definition
	order  []string
}

// NewCatalog builds a catalog from the given definitions, preserving order.
func NewCatalog(defs ...Definition) *Catalog {
	c := &Catalog{byName: make(map[string]Definition, len(defs))}
	for _, def := range defs {
		if _, exists := c.byName[def.Name]; exists {
			continue
		}
		c.byName[def.Name] = def
		c.order = append(c.order, def.Name)
	}
	return c
}

// Resolve looks a workflow type up by name.
func (c *Catalog) Resolve(name string) (Definition, bool) {
	def, ok := c.byName[name]
	return def, ok
}

// All returns every definition in declaration order.
func (c *Catalog) All() []Definition {
	defs := make([]Definition, 0, len(c.order))
	for _, name := range c.order {
		defs = append(defs, c.byName[name])
	}
	return defs
}

// DefaultCatalog returns the workflow types this deployment offers.
func DefaultCatalog() *Catalog {
	return NewCatalog(
		Definition{
			Name:        "grow_optimizer",
			Description: "Grow Optimizer",
			Parameters: []Parameter{
				DateTimeParameter{
					KeyName:     "start_time",
					Title:       "Start time",
					Description: "Start of the optimization horizon",
					Default:     DateTime(time.Date(2019, 1, 1, 0, 0, 0, 0, time.UTC)),
				},
				DateTimeParameter{
					KeyName: "end_time",
					Title:   "End time",
					Default: DateTime(time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)),
				},
				DurationParameter{
					KeyName:     "time_step",
					Title:       "Time step",
					Description: "Resolution of the optimization",
					Default:     Duration(time.Hour),
					Minimum:     Duration(15 * time.Minute),
					Maximum:     Duration(24 * time.Hour),
				},
				StringParameter{
					KeyName: "objective",
					Title:   "Optimization objective",
					Default: String("cost"),
					EnumOptions: []EnumOption{
						{KeyName: "cost", DisplayName: "Minimize cost"},
						{KeyName: "co2", DisplayName: "Minimize CO2 emission"},
					},
				},
				BooleanParameter{
					KeyName: "include_pressure",
					Title:   "Include pressure drops",
					Default: Bool(false),
				},
			},
		},
		Definition{
			Name:        "grow_optimizer_no_heat_losses",
			Description: "Grow Optimizer without heat losses",
			Parameters: []Parameter{
				DurationParameter{
					KeyName: "time_step",
					Title:   "Time step",
					Default: Duration(time.Hour),
				},
				IntegerParameter{
					KeyName: "max_iterations",
					Title:   "Maximum iterations",
					Default: Int(100),
					Minimum: Int(1),
					Maximum: Int(10000),
				},
			},
		},
		Definition{
			Name:        "grow_simulator",
			Description: "Grow Simulator",
			Parameters: []Parameter{
				DurationParameter{
					KeyName: "time_step",
					Title:   "Time step",
					Default: Duration(time.Hour),
				},
				FloatParameter{
					KeyName:     "convergence_tolerance",
					Title:       "Convergence tolerance",
					Description: "Relative tolerance for the solver",
					Default:     Float(1e-6),
					Minimum:     Float(1e-9),
					Maximum:     Float(1e-3),
				},
			},
		},
		Definition{
			Name:        "simulator",
			Description: "High fidelity simulator",
		},
	)
}
