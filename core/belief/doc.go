// Package belief models time-series data as beliefs: claims about the value
// of a sensor at an event time, attributed to a source and timestamped with
// the moment the claim was formed. The log is append-only, which makes
// point-in-time reconstruction ("what was known as of T") exact and lets the
// scheduler be re-run deterministically against historical states.
package belief
