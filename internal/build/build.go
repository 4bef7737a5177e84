package build

import "strings"

var (
	Version = "dev"
	AppName = "Gantry"
	Slug    = ""
)

func init() {
	if Slug == "" {
		Slug = strings.ToLower(AppName)
	}
}
