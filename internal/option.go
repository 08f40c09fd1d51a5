package internal

// Option is a functional option for configuring the application.
type Option func(*application)

// Component names a long-running part of the process.
type Component string

// Components started by Run.
const (
	ComponentWeb      Component = "web"
	ComponentBackend  Component = "backend"
	ComponentImporter Component = "importer"
)

type application struct {
	config     *Config
	components []Component
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithComponents selects what Run starts. Without it Run starts the web
// front-end, plus the backend when backend.embedded is set and the importer
// watch when importer.watch is set.
func WithComponents(components ...Component) Option {
	return func(a *application) {
		a.components = append(a.components, components...)
	}
}

func (a *application) enabled(c Component) bool {
	for _, have := range a.components {
		if have == c {
			return true
		}
	}
	return false
}

func defaultComponents(cfg *Config) []Component {
	out := []Component{ComponentWeb}
	if cfg.Backend.Embedded {
		out = append(out, ComponentBackend)
	}
	if cfg.Importer.Watch {
		out = append(out, ComponentImporter)
	}
	return out
}
