package logger

// Standard field keys for structured logging. Use them consistently so
// log lines can be filtered by connection, command or path.
const (
	// ========================================================================
	// Connection
	// ========================================================================
	KeyConnID     = "conn_id"     // Per-connection UUID
	KeyClientIP   = "client_ip"   // Remote address host
	KeyClientAddr = "client_addr" // Remote address host:port
	KeyListen     = "listen"      // Local listen address
	KeyActive     = "active"      // Active connection count
	KeyReason     = "reason"      // Rejection/close reason
	KeyProtocol   = "protocol"    // Adapter protocol name
	KeyPort       = "port"        // Listen port

	// ========================================================================
	// Protocol
	// ========================================================================
	KeyOpcode  = "opcode"  // Numeric opcode, hex formatted
	KeyCommand = "command" // Command name: OPEN_DIR, STAT_FILE, ...
	KeyStatus  = "status"  // Response status

	// ========================================================================
	// File system
	// ========================================================================
	KeyPath       = "path"        // Client or resolved path
	KeyRoot       = "root"        // Served root folder
	KeySize       = "size"        // Size in bytes
	KeyOffset     = "offset"      // Byte offset
	KeyCount      = "count"       // Bytes or entries requested
	KeySector     = "sector"      // Start sector
	KeySectors    = "sectors"     // Sector count
	KeySectorSize = "sector_size" // CD sector size mode
	KeyBytes      = "bytes"       // Bytes transferred

	// ========================================================================
	// Misc
	// ========================================================================
	KeyError      = "error"       // Error message
	KeyDurationMs = "duration_ms" // Elapsed milliseconds
	KeyTitleID    = "title_id"    // PS3 title id
)

// Err formats an error for the KeyError field; nil yields an empty string.
func Err(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
