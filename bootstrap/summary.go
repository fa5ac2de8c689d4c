package bootstrap

import (
	"time"

	"github.com/kbukum/consulkit/component"
	"github.com/kbukum/consulkit/logger"
)

// logSummary writes one line per describable component followed by the
// startup total. Components that do not implement Describable are listed by
// name only.
func logSummary(log *logger.Logger, reg *component.Registry, took time.Duration) {
	for _, c := range reg.All() {
		fields := map[string]interface{}{"component": c.Name()}
		if d, ok := c.(component.Describable); ok {
			desc := d.Describe()
			name := desc.Name
			if name == "" {
				name = c.Name()
			}
			fields["name"] = name
			fields["type"] = desc.Type
			if desc.Details != "" {
				fields["details"] = desc.Details
			}
			if desc.Port > 0 {
				fields["port"] = desc.Port
			}
		}
		log.Info("Infrastructure", fields)
	}
	log.Info("Startup complete", logger.DurationFields("startup", took))
}
