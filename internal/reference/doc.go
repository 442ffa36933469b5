// Package reference holds the static currency tables consulted by the FX
// normalizer: sequential redenominations per country and the fixed euro
// conversion rates of legacy currencies.
//
// Tables are loaded once, validated, and never modified afterwards; they are
// passed explicitly to the stages that need them.
package reference
