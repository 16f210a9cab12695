package graphics

import "fmt"

// CommandKind identifies an entry of the device command log.
type CommandKind int

const (
	CommandSetFramebuffer CommandKind = iota
	CommandSetViewport
	CommandSetDepthTest
	CommandBindProgram
	CommandSetUniform
	CommandBindTexture
	CommandBindImage
	CommandDispatch
	CommandDraw
)

var commandKindNames = [...]string{
	"SetFramebuffer",
	"SetViewport",
	"SetDepthTest",
	"BindProgram",
	"SetUniform",
	"BindTexture",
	"BindImage",
	"Dispatch",
	"Draw",
}

func (k CommandKind) String() string {
	if k < 0 || int(k) >= len(commandKindNames) {
		return fmt.Sprintf("CommandKind(%d)", int(k))
	}
	return commandKindNames[k]
}

// Command is one state change or GPU operation issued through a device. Only the
// fields relevant to Kind are set.
type Command struct {
	Kind CommandKind

	// Program is the label of the bound program for uniform, binding, dispatch and draw commands.
	Program string

	// Target is the framebuffer label for SetFramebuffer, Dispatch and Draw.
	Target string

	// Name is the uniform, texture or image variable name.
	Name string

	// Value holds SetUniform float values; IntValue holds SetUniformInt values.
	Value    float32
	IntValue int32
	IsInt    bool

	// Enabled is the SetDepthTest state.
	Enabled bool

	// Unit, Texture, MipLevel and Access describe texture and image bindings.
	Unit     int
	Texture  string
	MipLevel int
	Access   AccessMode

	Viewport Viewport

	// GroupsX and GroupsY are the dispatched workgroup counts.
	GroupsX, GroupsY int

	VertexCount int
}

func (c Command) String() string {
	switch c.Kind {
	case CommandSetFramebuffer:
		return fmt.Sprintf("SetFramebuffer %q", c.Target)
	case CommandSetViewport:
		return fmt.Sprintf("SetViewport %d,%d %dx%d", c.Viewport.X, c.Viewport.Y, c.Viewport.Width, c.Viewport.Height)
	case CommandSetDepthTest:
		return fmt.Sprintf("SetDepthTest %t", c.Enabled)
	case CommandBindProgram:
		return fmt.Sprintf("BindProgram %q", c.Program)
	case CommandSetUniform:
		if c.IsInt {
			return fmt.Sprintf("SetUniform %s.%s = %d", c.Program, c.Name, c.IntValue)
		}
		return fmt.Sprintf("SetUniform %s.%s = %g", c.Program, c.Name, c.Value)
	case CommandBindTexture:
		return fmt.Sprintf("BindTexture %s.%s unit %d <- %q", c.Program, c.Name, c.Unit, c.Texture)
	case CommandBindImage:
		return fmt.Sprintf("BindImage %s.%s unit %d mip %d %v <- %q", c.Program, c.Name, c.Unit, c.MipLevel, c.Access, c.Texture)
	case CommandDispatch:
		return fmt.Sprintf("Dispatch %s %dx%d groups", c.Program, c.GroupsX, c.GroupsY)
	case CommandDraw:
		return fmt.Sprintf("Draw %s %d vertices -> %q", c.Program, c.VertexCount, c.Target)
	default:
		return c.Kind.String()
	}
}
