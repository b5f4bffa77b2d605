package gateway

import "fmt"

// errUnknownAssembly reports a RequestError for a visualize path param
// outside VisualizeAssemblies' bounded enumeration.
func errUnknownAssembly(assembly string) error {
	return fmt.Errorf("unknown assembly %q", assembly)
}
