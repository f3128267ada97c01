//go:generate go run ./internal/tools/bootstrapgen -o examples -force

package attackdeck
