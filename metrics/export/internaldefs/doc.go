// Package internaldefs holds the shared metric name table and bucket math
// used by the exporter packages. It exists so exporters agree on names
// without importing each other.
package internaldefs
