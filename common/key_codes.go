package common

// Key codes delivered to window key callbacks. They are GLFW key values: printable keys
// use their uppercase ASCII code.
// Reference: https://pkg.go.dev/github.com/go-gl/glfw/v3.3/glfw#Key
const (
	KeySpace = 32
	KeyA     = 65 // toggle auto exposure
	KeyP     = 80 // toggle frame statistics
	KeyR     = 82 // reset exposure
	KeyEsc   = 256

	KeyDown = 264
	KeyUp   = 265
)
