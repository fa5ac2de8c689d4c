// Package version reports the build version of the running binary. Values
// come from -ldflags when set and from the module's embedded VCS settings
// otherwise.
//
//	go build -ldflags "-X github.com/kbukum/consulkit/version.Version=1.4.0"
package version
