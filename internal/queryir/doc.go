// Package queryir provides an abstract query representation for reading
// temporal records.
//
// QueryIR sits between the record stores and their query backends:
//
//	[temporal reads] → [Query IR] → [SQL Backend]
//
// Validity itself is decided by temporal.IsValidAt; the predicates built
// here (ValidAt, InvalidAt, Overlaps) are the same rules expressed over
// columns so a backend can filter without loading a whole group.
//
// SEALED INTERFACES:
//
// Query and Predicate are sealed interfaces using the marker method pattern.
// Only types in this package can implement them, so backends can switch
// exhaustively:
//
//	switch p := pred.(type) {
//	case Equals:
//	case IsNull:
//	case Compare:
//	case And, Or, Not:
//	}
//
// NULLS:
//
// Only valid_end is nullable. IsNull is the single way to test for it;
// Equals never matches NULL.
package queryir
