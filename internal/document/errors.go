package document

// SchemaError reports malformed input: bad scalar text, a wrong node type,
// a missing required key or an unreadable document.
type SchemaError struct {
	Location Location
	Message  string
}

func (e *SchemaError) Error() string {
	return e.Location.String() + " " + e.Message
}

// AllocationError reports a failure to place an address: unknown domain,
// out-of-range offset, conflicting occupant, missing subnet or MAC, or a
// duplicate MAC.
type AllocationError struct {
	Location Location
	Message  string
}

func (e *AllocationError) Error() string {
	return e.Location.String() + " " + e.Message
}
