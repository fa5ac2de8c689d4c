package discovery

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ServiceIdentity names this process instance. Build it once at startup and
// pass it to BuildRegistration.
type ServiceIdentity struct {
	Name         string
	InstanceGUID string
}

// NewServiceIdentity creates an identity with a fresh instance GUID: a v4
// UUID as 32 hex digits without dashes. An empty name falls back to the
// executable's base name.
func NewServiceIdentity(name string) ServiceIdentity {
	if strings.TrimSpace(name) == "" {
		name = executableName()
	}
	return ServiceIdentity{
		Name:         name,
		InstanceGUID: strings.ReplaceAll(uuid.NewString(), "-", ""),
	}
}

// InstanceID returns "{Name}:{InstanceGUID}".
func (id ServiceIdentity) InstanceID() string {
	return id.Name + ":" + id.InstanceGUID
}

func executableName() string {
	exe, err := os.Executable()
	if err != nil {
		exe = os.Args[0]
	}
	return serviceNameFromPath(exe)
}

// serviceNameFromPath keeps dots in names like "orders.api" and only drops
// the Windows ".exe" suffix.
func serviceNameFromPath(p string) string {
	return strings.TrimSuffix(filepath.Base(p), ".exe")
}
