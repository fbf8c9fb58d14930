// Package compute defines the named computations that jobs run against
// datasets, the registry that resolves them by name, and the built-in
// wind-plant analyses (row sums, sensor range and unresponsiveness flags,
// air-density wind-speed correction).
package compute
