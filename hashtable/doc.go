// Package hashtable implements the model hash table: for every model point
// pair it stores the reference point index and alignment angle, keyed by the
// pair's quantized feature.
//
// A Table is immutable once built and may be shared by any number of
// concurrent readers.
package hashtable
