package model

// Centralized icons for the UI components
// Using simple single-width characters for consistent terminal rendering
const (
	IconRun      = "▸" // Run tag in lists
	IconTimestep = "·" // Timestep row
	IconWarning  = "≈" // Later row disagreed with the retained value
	IconError    = "✗" // Row failed validation
	IconMissing  = "?" // Referenced file not found
	IconOK       = " " // Space (OK - no icon to reduce noise)
)
