// Package banner prints the CLI's startup banner.
package banner

import "fmt"

const art = `
 __|  __| __ \  _ \  |
 _|  |    |   | |  | |
_|  _____|____/ ___/ _____|
`

// Banner returns the startup banner for the given version string.
func Banner(version string) string {
	return fmt.Sprintf("%s  field-aware factorization machine regressor  %s\n\n", art, version)
}
