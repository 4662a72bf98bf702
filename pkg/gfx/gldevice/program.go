package gldevice

import (
	"fmt"
	"strings"

	"github.com/go-gl/gl/v4.5-core/gl"
	"github.com/go-gl/mathgl/mgl32"
)

// program is a linked GL program with a lazily filled uniform table.
type program struct {
	id       uint32
	uniforms map[string]int32
}

func (p *program) loc(name string) int32 {
	if l, ok := p.uniforms[name]; ok {
		return l
	}
	l := gl.GetUniformLocation(p.id, gl.Str(name+"\x00"))
	p.uniforms[name] = l
	return l
}

func (p *program) setInt(name string, v int) { gl.ProgramUniform1i(p.id, p.loc(name), int32(v)) }

func (p *program) setBool(name string, v bool) {
	b := 0
	if v {
		b = 1
	}
	p.setInt(name, b)
}

func (p *program) setFloat(name string, v float32) { gl.ProgramUniform1f(p.id, p.loc(name), v) }

func (p *program) setVec2(name string, v mgl32.Vec2) {
	gl.ProgramUniform2f(p.id, p.loc(name), v[0], v[1])
}

func (p *program) setVec3(name string, v mgl32.Vec3) {
	gl.ProgramUniform3f(p.id, p.loc(name), v[0], v[1], v[2])
}

func (p *program) setIVec3(name string, v [3]int32) {
	gl.ProgramUniform3i(p.id, p.loc(name), v[0], v[1], v[2])
}

func (p *program) setMat4(name string, m mgl32.Mat4) {
	gl.ProgramUniformMatrix4fv(p.id, p.loc(name), 1, false, &m[0])
}

func newComputeProgram(source string) (*program, error) {
	shader, err := compileShader(source, gl.COMPUTE_SHADER)
	if err != nil {
		return nil, err
	}
	id, err := linkProgram(shader)
	if err != nil {
		return nil, err
	}
	return &program{id: id, uniforms: make(map[string]int32)}, nil
}

// createShaderProgram compiles and links a vertex/fragment pair.
func createShaderProgram(vertexSource, fragmentSource string) (uint32, error) {
	vertexShader, err := compileShader(vertexSource, gl.VERTEX_SHADER)
	if err != nil {
		return 0, err
	}
	fragmentShader, err := compileShader(fragmentSource, gl.FRAGMENT_SHADER)
	if err != nil {
		gl.DeleteShader(vertexShader)
		return 0, err
	}
	return linkProgram(vertexShader, fragmentShader)
}

// linkProgram links the shaders and deletes them whether or not linking
// succeeded.
func linkProgram(shaders ...uint32) (uint32, error) {
	program := gl.CreateProgram()
	for _, s := range shaders {
		gl.AttachShader(program, s)
	}
	gl.LinkProgram(program)

	var status int32
	gl.GetProgramiv(program, gl.LINK_STATUS, &status)
	if status == gl.FALSE {
		var logLength int32
		gl.GetProgramiv(program, gl.INFO_LOG_LENGTH, &logLength)
		log := strings.Repeat("\x00", int(logLength+1))
		gl.GetProgramInfoLog(program, logLength, nil, gl.Str(log))

		gl.DeleteProgram(program)
		for _, s := range shaders {
			gl.DeleteShader(s)
		}
		return 0, fmt.Errorf("shader program linking failed: %v", log)
	}

	for _, s := range shaders {
		gl.DetachShader(program, s)
		gl.DeleteShader(s)
	}
	return program, nil
}

func compileShader(source string, shaderType uint32) (uint32, error) {
	shader := gl.CreateShader(shaderType)

	csources, free := gl.Strs(source + "\x00")
	gl.ShaderSource(shader, 1, csources, nil)
	free()
	gl.CompileShader(shader)

	var status int32
	gl.GetShaderiv(shader, gl.COMPILE_STATUS, &status)
	if status == gl.FALSE {
		var logLength int32
		gl.GetShaderiv(shader, gl.INFO_LOG_LENGTH, &logLength)
		log := strings.Repeat("\x00", int(logLength+1))
		gl.GetShaderInfoLog(shader, logLength, nil, gl.Str(log))
		gl.DeleteShader(shader)
		return 0, fmt.Errorf("shader compilation failed: %v", log)
	}
	return shader, nil
}
