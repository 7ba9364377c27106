// Package stack defines named stage sequences and loads them from YAML.
//
// A Definition lists stage ids in execution order together with the IO types
// the initial bag is guaranteed to hold. Built-in definitions cover the usual
// product image pipelines; a YAML file can add or replace definitions. Stage
// options in a file are decoded by the owning stage, so each entry carries
// typed options rather than a loose map.
package stack
