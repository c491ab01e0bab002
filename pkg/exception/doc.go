// Package exception holds the sentinel errors shared across packages.
//
// Sentinels are created with github.com/yanun0323/errors. Once one has been
// annotated with that package's Wrap or Wrapf, the standard library's
// errors.Is no longer finds it, so callers match with the Is from
// github.com/yanun0323/errors. Errors propagated with fmt.Errorf and %w stay
// matchable by both.
package exception
