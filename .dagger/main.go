// Alchemister CI/CD
//
// Package main provides reproducible builds and tests locally and in GitHub actions.
// It is the main harness for handling nearly all dev operations.
package main

import (
	"context"

	"dagger/alchemister/internal/dagger"
)

// Alchemister is the main module for the Alchemister CI/CD pipeline
type Alchemister struct {
	// Project source directory
	//
	// +private
	Source *dagger.Directory
}

// New creates a new Alchemister CI/CD module instance
func New(
	// Project source directory.
	//
	// +defaultPath="/"
	// +ignore=[".git", ".direnv", ".devenv", "build", "tmp"]
	source *dagger.Directory,
) *Alchemister {
	return &Alchemister{
		Source: source,
	}
}

// goContainer returns a Go container with the project source mounted and the
// module and build caches shared.
//
// It is the shared foundation for tests, builds, and linting.
func (a *Alchemister) goContainer() *dagger.Container {
	return dag.Container().
		From("golang:1.25-bookworm").
		WithEnvVariable("CGO_ENABLED", "0").
		WithEnvVariable("PATH", "/go/bin:$PATH", dagger.ContainerWithEnvVariableOpts{Expand: true}).
		WithMountedCache("/go/pkg/mod", dag.CacheVolume("go-mod")).
		WithMountedCache("/root/.cache/go-build", dag.CacheVolume("go-build")).
		WithWorkdir("/src").
		WithDirectory("/src", a.Source)
}

// Test runs the alchemister unit tests via "go test"
func (a *Alchemister) Test(ctx context.Context) (string, error) {
	return a.goContainer().
		WithExec([]string{"go", "test", "-v", "./..."}).
		Stdout(ctx)
}
