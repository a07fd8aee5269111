// Package voting implements the pose voting engine.
//
// Each scene key point pairs with its neighbours, looks their features up in
// the model hash table and votes into a private accumulator over
// (model reference point, rotation bin). Accumulator peaks become pose
// candidates. Key points are independent tasks; their candidates are
// collected in per-key-point slots and concatenated in key-point order, so
// the output is identical for every worker count.
//
// Peak rule: a cell is a peak when its votes reach
// max(MinVotes, PeakRatio*best) where best is the strongest cell of the key
// point. Peaks are ordered by votes, then by cell index, and at most MaxPeaks
// are kept.
package voting
