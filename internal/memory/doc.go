// Package memory implements the Memory Entry contract: "same rules as
// files". A memory is stored as a regular path through the kernel façade
// - JSON content plus a small envelope of bitemporal fields - so every
// Memory Entry operation is Put/Get/Search layered over Read/Write/List
// and the façade's existing version history, with no parallel storage
// path of its own.
package memory
