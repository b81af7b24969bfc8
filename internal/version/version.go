// ABOUTME: Product and version identification
// ABOUTME: Reported by the control surface status and the command line tools
package version

const (
	Version      = "0.3.0"
	Product      = "meshtalk"
	Manufacturer = "Meshtalk Project"
)

// String returns "product/version" as sent in control handshakes
func String() string {
	return Product + "/" + Version
}
