// Package strategy chooses a response style with Thompson Sampling and
// learns from delayed rewards.
//
// Bandit state is one row per (segment, source, strategy). Select draws a
// Beta(successes+1, failures+1) sample per candidate from the most specific
// row available and picks the largest. RecordResult adds the observed reward
// to both the source row and the segment-wide "*" row that backs sources
// without history of their own.
package strategy
