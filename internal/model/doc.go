// Package model defines the value objects exchanged between pipeline stages.
//
// Records are never mutated once a stage has emitted them; each stage builds
// a fresh slice.
package model
