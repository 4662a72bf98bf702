package gldevice

import "lumen/pkg/gfx"

// shaderPrelude is prepended to every compute kernel: scene boxes, ray
// casting and the shading terms shared by geometry, voxel and probe passes.
const shaderPrelude = `
#version 450 core

struct Env { vec3 toLight; vec3 sunColor; vec3 sky; vec3 ground; };
struct Cam { vec3 position; vec3 forward; vec3 right; vec3 up; vec2 tanHalf; float far; };
struct Cascade { vec3 origin; float scale; int size; };

layout(std430, binding = 0) readonly buffer Boxes { vec4 boxData[]; };
uniform int boxCount;

vec3 boxMin(int i) { return boxData[3 * i].xyz; }
float boxEmission(int i) { return boxData[3 * i].w; }
vec3 boxMax(int i) { return boxData[3 * i + 1].xyz; }
float boxAlpha(int i) { return boxData[3 * i + 1].w; }
vec3 boxAlbedo(int i) { return boxData[3 * i + 2].xyz; }
float boxRoughness(int i) { return boxData[3 * i + 2].w; }

float signOf(float v) { return v < 0.0 ? -1.0 : 1.0; }

// Slab test; a ray starting inside the box reports the exit point.
bool intersectBox(vec3 lo, vec3 hi, vec3 o, vec3 dir, out float t, out vec3 n) {
	const float eps = 1e-4;
	float tNear = -1e30;
	float tFar = 1e30;
	int nearAxis = -1;
	int farAxis = -1;
	t = 0.0;
	n = vec3(0.0);
	for (int a = 0; a < 3; a++) {
		if (abs(dir[a]) < 1e-9) {
			if (o[a] < lo[a] || o[a] > hi[a]) return false;
			continue;
		}
		float inv = 1.0 / dir[a];
		float t0 = (lo[a] - o[a]) * inv;
		float t1 = (hi[a] - o[a]) * inv;
		if (t0 > t1) { float s = t0; t0 = t1; t1 = s; }
		if (t0 > tNear) { tNear = t0; nearAxis = a; }
		if (t1 < tFar) { tFar = t1; farAxis = a; }
		if (tNear > tFar) return false;
	}
	if (tFar < eps) return false;
	if (tNear > eps && nearAxis >= 0) {
		n[nearAxis] = -signOf(dir[nearAxis]);
		t = tNear;
		return true;
	}
	if (farAxis < 0) return false;
	n[farAxis] = signOf(dir[farAxis]);
	t = tFar;
	return true;
}

struct Hit { float dist; vec3 pos; vec3 normal; int box; };

bool traceBoxes(vec3 o, vec3 dir, float maxDist, out Hit h) {
	h.dist = maxDist;
	h.box = -1;
	h.normal = vec3(0.0);
	for (int i = 0; i < boxCount; i++) {
		float t;
		vec3 n;
		if (intersectBox(boxMin(i), boxMax(i), o, dir, t, n) && t < h.dist) {
			h.dist = t;
			h.normal = n;
			h.box = i;
		}
	}
	h.pos = o + dir * h.dist;
	return h.box >= 0;
}

vec3 rayDirection(Cam c, vec2 st) {
	vec2 xy = vec2(2.0 * st.x - 1.0, 1.0 - 2.0 * st.y) * c.tanHalf;
	return normalize(c.forward + c.right * xy.x + c.up * xy.y);
}

vec3 skyRadiance(Env env, vec3 dir) {
	return mix(env.ground, env.sky, clamp(dir.y * 0.5 + 0.5, 0.0, 1.0));
}

vec3 directRadiance(Env env, vec3 albedo, float emission, vec3 n, float visibility) {
	float ndl = max(0.0, dot(n, env.toLight));
	return albedo * env.sunColor * ndl * visibility + albedo * emission;
}

vec3 shadeHit(Env env, Hit h) {
	float vis = 1.0;
	if (dot(h.normal, env.toLight) > 0.0) {
		Hit s;
		if (traceBoxes(h.pos + h.normal * 1e-3, env.toLight, 1e30, s)) vis = 0.0;
	}
	return directRadiance(env, boxAlbedo(h.box), boxEmission(h.box), h.normal, vis);
}

const vec3 faceForward[6] = vec3[6](vec3(1, 0, 0), vec3(-1, 0, 0), vec3(0, 1, 0), vec3(0, -1, 0), vec3(0, 0, 1), vec3(0, 0, -1));
const vec3 faceUp[6] = vec3[6](vec3(0, 1, 0), vec3(0, 1, 0), vec3(0, 0, -1), vec3(0, 0, 1), vec3(0, 1, 0), vec3(0, 1, 0));
const vec3 faceRight[6] = vec3[6](vec3(0, 0, -1), vec3(0, 0, 1), vec3(1, 0, 0), vec3(1, 0, 0), vec3(1, 0, 0), vec3(-1, 0, 0));

vec3 cubeTexelDirection(int face, vec2 st) {
	return normalize(faceForward[face] + faceRight[face] * (2.0 * st.x - 1.0) + faceUp[face] * (1.0 - 2.0 * st.y));
}

ivec2 pixel() { return ivec2(gl_GlobalInvocationID.xy); }
`

var kernelSources = [gfx.PassCount]string{
	gfx.PassGBuffer:          gbufferKernel,
	gfx.PassShadowDepth:      shadowDepthKernel,
	gfx.PassVoxelize:         voxelizeKernel,
	gfx.PassVoxelDebug:       voxelDebugKernel,
	gfx.PassConeTrace:        coneTraceKernel,
	gfx.PassUpsampleBlur:     upsampleBlurKernel,
	gfx.PassProbeFace:        probeFaceKernel,
	gfx.PassConvolve:         convolveKernel,
	gfx.PassDeferredLighting: lightingKernel,
	gfx.PassForwardLighting:  lightingKernel,
	gfx.PassComposite:        compositeKernel,
	gfx.PassPlaceOnTerrain:   placeOnTerrainKernel,
}

const gbufferKernel = `
layout(local_size_x = 8, local_size_y = 8) in;
layout(binding = 0) writeonly uniform image2D albedoOut;
layout(binding = 1) writeonly uniform image2D normalOut;
layout(binding = 2) writeonly uniform image2D positionOut;
uniform Cam cam;

void main() {
	ivec2 px = pixel();
	ivec2 size = imageSize(albedoOut);
	if (any(greaterThanEqual(px, size))) return;
	vec2 st = (vec2(px) + 0.5) / vec2(size);
	Hit h;
	if (!traceBoxes(cam.position, rayDirection(cam, st), cam.far, h)) {
		imageStore(albedoOut, px, vec4(0.0));
		imageStore(normalOut, px, vec4(0.0));
		imageStore(positionOut, px, vec4(0.0));
		return;
	}
	imageStore(albedoOut, px, vec4(boxAlbedo(h.box), boxEmission(h.box)));
	imageStore(normalOut, px, vec4(h.normal, boxRoughness(h.box)));
	imageStore(positionOut, px, vec4(h.pos, 1.0));
}
`

const shadowDepthKernel = `
layout(local_size_x = 8, local_size_y = 8) in;
layout(binding = 0) writeonly uniform image2D depthOut;
uniform mat4 viewProj;
uniform mat4 invViewProj;

vec3 unproject(vec3 ndc) {
	vec4 p = invViewProj * vec4(ndc, 1.0);
	return p.xyz / p.w;
}

void main() {
	ivec2 px = pixel();
	ivec2 size = imageSize(depthOut);
	if (any(greaterThanEqual(px, size))) return;
	vec2 ndc = vec2(2.0 * (float(px.x) + 0.5) / float(size.x) - 1.0, 1.0 - 2.0 * (float(px.y) + 0.5) / float(size.y));
	vec3 rayStart = unproject(vec3(ndc, -1.0));
	vec3 span = unproject(vec3(ndc, 1.0)) - rayStart;
	float depth = 1.0;
	Hit h;
	if (traceBoxes(rayStart, normalize(span), length(span), h)) {
		vec4 clip = viewProj * vec4(h.pos, 1.0);
		depth = clip.z / clip.w * 0.5 + 0.5;
	}
	imageStore(depthOut, px, vec4(depth));
}
`

const voxelizeKernel = `
layout(local_size_x = 4, local_size_y = 4, local_size_z = 4) in;
layout(binding = 0) writeonly uniform image3D volume;
uniform Cascade cascade;
uniform Env env;

vec3 nearestFaceNormal(int i, vec3 p) {
	float best = 1e30;
	vec3 n = vec3(0.0);
	vec3 lo = p - boxMin(i);
	vec3 hi = boxMax(i) - p;
	for (int a = 0; a < 3; a++) {
		if (lo[a] < best) { best = lo[a]; n = vec3(0.0); n[a] = -1.0; }
		if (hi[a] < best) { best = hi[a]; n = vec3(0.0); n[a] = 1.0; }
	}
	return n;
}

void main() {
	ivec3 v = ivec3(gl_GlobalInvocationID);
	int n = cascade.size;
	if (any(greaterThanEqual(v, ivec3(n)))) return;
	// later boxes overwrite earlier ones
	int found = -1;
	for (int i = 0; i < boxCount; i++) {
		ivec3 lo = clamp(ivec3(floor((boxMin(i) - cascade.origin) * cascade.scale)), ivec3(0), ivec3(n));
		ivec3 hi = clamp(ivec3(ceil((boxMax(i) - cascade.origin) * cascade.scale)), ivec3(0), ivec3(n));
		if (all(greaterThanEqual(v, lo)) && all(lessThan(v, hi))) found = i;
	}
	if (found < 0) return;
	vec3 centre = cascade.origin + (vec3(v) + 0.5) / cascade.scale;
	vec3 radiance = directRadiance(env, boxAlbedo(found), boxEmission(found), nearestFaceNormal(found, centre), 1.0);
	imageStore(volume, v, vec4(radiance, boxAlpha(found)));
}
`

// The debug view marches each pixel ray through cascade 0 and shows the
// first occupied voxel.
const voxelDebugKernel = `
layout(local_size_x = 8, local_size_y = 8) in;
layout(binding = 0) writeonly uniform image2D debugOut;
layout(binding = 0) uniform sampler3D volume;
uniform mat4 invViewProj;
uniform Cascade cascade;

vec3 unproject(vec3 ndc) {
	vec4 p = invViewProj * vec4(ndc, 1.0);
	return p.xyz / p.w;
}

void main() {
	ivec2 px = pixel();
	ivec2 size = imageSize(debugOut);
	if (any(greaterThanEqual(px, size))) return;
	vec2 ndc = vec2(2.0 * (float(px.x) + 0.5) / float(size.x) - 1.0, 1.0 - 2.0 * (float(px.y) + 0.5) / float(size.y));
	vec3 rayStart = unproject(vec3(ndc, -1.0));
	vec3 span = unproject(vec3(ndc, 1.0)) - rayStart;
	vec3 dir = normalize(span);

	vec3 lo = cascade.origin;
	vec3 hi = lo + vec3(float(cascade.size) / cascade.scale);
	vec3 inv = 1.0 / dir;
	vec3 t0 = (lo - rayStart) * inv;
	vec3 t1 = (hi - rayStart) * inv;
	float tEnter = max(0.0, max(max(min(t0.x, t1.x), min(t0.y, t1.y)), min(t0.z, t1.z)));
	float tExit = min(length(span), min(min(max(t0.x, t1.x), max(t0.y, t1.y)), max(t0.z, t1.z)));

	float stepLen = 0.5 / cascade.scale;
	int steps = 4 * cascade.size;
	for (int i = 0; i < steps && tEnter + float(i) * stepLen < tExit; i++) {
		vec3 p = rayStart + dir * (tEnter + float(i) * stepLen);
		ivec3 v = ivec3(floor((p - lo) * cascade.scale));
		if (any(lessThan(v, ivec3(0))) || any(greaterThanEqual(v, ivec3(cascade.size)))) continue;
		vec4 texel = texelFetch(volume, v, 0);
		if (texel.a > 0.0) {
			imageStore(debugOut, px, vec4(texel.rgb, 1.0));
			return;
		}
	}
	imageStore(debugOut, px, vec4(0.0));
}
`

const coneTraceKernel = `
layout(local_size_x = 8, local_size_y = 8) in;
layout(binding = 0) writeonly uniform image2D giOut;
layout(binding = 0) uniform sampler2D gAlbedo;
layout(binding = 1) uniform sampler2D gNormal;
layout(binding = 2) uniform sampler2D gPosition;
layout(binding = 3) uniform sampler3D volume0;
layout(binding = 4) uniform sampler3D volume1;
layout(binding = 5) uniform sampler3D volume2;
layout(binding = 6) uniform sampler3D volume3;
uniform Cascade cascades[4];
uniform int cascadeCount;
uniform float strength;
uniform float maxDist;
uniform float aperture;

const float coneWeights[5] = float[5](0.25, 0.1875, 0.1875, 0.1875, 0.1875);

vec4 sampleVolume(int i, vec3 uvw, float lod) {
	switch (i) {
	case 0: return textureLod(volume0, uvw, lod);
	case 1: return textureLod(volume1, uvw, lod);
	case 2: return textureLod(volume2, uvw, lod);
	}
	return textureLod(volume3, uvw, lod);
}

int cascadeFor(vec3 p) {
	for (int i = 0; i < cascadeCount; i++) {
		vec3 lo = cascades[i].origin;
		vec3 hi = lo + vec3(float(cascades[i].size) / cascades[i].scale);
		if (all(greaterThanEqual(p, lo)) && all(lessThanEqual(p, hi))) return i;
	}
	return -1;
}

vec4 traceCone(vec3 origin, vec3 n, vec3 dir) {
	float finest = 1.0 / cascades[0].scale;
	vec3 start = origin + n * finest;
	vec3 rgb = vec3(0.0);
	float alpha = 0.0;
	float t = finest;
	for (int iter = 0; iter < 1024 && alpha < 0.99 && t < maxDist; iter++) {
		float diameter = max(finest, 2.0 * aperture * t);
		vec3 p = start + dir * t;
		int i = cascadeFor(p);
		if (i < 0) break;
		vec3 uvw = (p - cascades[i].origin) * cascades[i].scale / float(cascades[i].size);
		vec4 s = sampleVolume(i, uvw, log2(diameter * cascades[i].scale));
		float w = (1.0 - alpha) * s.a;
		rgb += s.rgb * w;
		alpha += w;
		t += diameter * 0.5;
	}
	return vec4(rgb, alpha);
}

void main() {
	ivec2 px = pixel();
	ivec2 size = imageSize(giOut);
	if (any(greaterThanEqual(px, size))) return;
	vec2 uv = (vec2(px) + 0.5) / vec2(size);
	vec4 pos = textureLod(gPosition, uv, 0.0);
	vec3 n = textureLod(gNormal, uv, 0.0).xyz;
	if (pos.w < 0.5 || length(n) == 0.0) {
		imageStore(giOut, px, vec4(0.0));
		return;
	}
	n = normalize(n);
	vec3 up = abs(n.y) > 0.99 ? vec3(1, 0, 0) : vec3(0, 1, 0);
	vec3 t = normalize(cross(up, n));
	vec3 b = cross(n, t);
	const float sin60 = 0.8660254;
	const float cos60 = 0.5;
	vec3 dirs[5] = vec3[5](
		n,
		normalize(n * cos60 + t * sin60),
		normalize(n * cos60 - t * sin60),
		normalize(n * cos60 + b * sin60),
		normalize(n * cos60 - b * sin60));
	vec3 gathered = vec3(0.0);
	float visible = 0.0;
	for (int k = 0; k < 5; k++) {
		vec4 c = traceCone(pos.xyz, n, dirs[k]);
		gathered += c.rgb * coneWeights[k];
		visible += (1.0 - c.a) * coneWeights[k];
	}
	imageStore(giOut, px, vec4(gathered * strength, visible));
}
`

const upsampleBlurKernel = `
layout(local_size_x = 8, local_size_y = 8) in;
layout(binding = 0) writeonly uniform image2D giOut;
layout(binding = 0) uniform sampler2D giLow;
uniform int radius;

void main() {
	ivec2 px = pixel();
	ivec2 size = imageSize(giOut);
	if (any(greaterThanEqual(px, size))) return;
	vec2 uv = (vec2(px) + 0.5) / vec2(size);
	vec2 texel = 1.0 / vec2(textureSize(giLow, 0));
	vec4 acc = vec4(0.0);
	for (int oy = -radius; oy <= radius; oy++) {
		for (int ox = -radius; ox <= radius; ox++) {
			acc += textureLod(giLow, uv + vec2(ox, oy) * texel, 0.0);
		}
	}
	float taps = float((2 * radius + 1) * (2 * radius + 1));
	imageStore(giOut, px, acc / taps);
}
`

const probeFaceKernel = `
layout(local_size_x = 8, local_size_y = 8) in;
layout(binding = 0) writeonly uniform image2D colorOut;
layout(binding = 1) writeonly uniform image2D depthOut;
uniform bool hasDepth;
uniform int face;
uniform vec3 probePos;
uniform float nearDist;
uniform float farDist;
uniform Env env;

void main() {
	ivec2 px = pixel();
	int size = imageSize(colorOut).x;
	if (any(greaterThanEqual(px, ivec2(size)))) return;
	vec3 dir = cubeTexelDirection(face, (vec2(px) + 0.5) / float(size));
	vec3 radiance = skyRadiance(env, dir);
	float dist = farDist;
	Hit h;
	if (traceBoxes(probePos + dir * nearDist, dir, farDist - nearDist, h)) {
		radiance = shadeHit(env, h);
		dist = nearDist + h.dist;
	}
	imageStore(colorOut, px, vec4(radiance, 1.0));
	if (hasDepth) imageStore(depthOut, px, vec4(dist));
}
`

const convolveKernel = `
layout(local_size_x = 8, local_size_y = 8) in;
layout(binding = 0) writeonly uniform image2D cubeOut;
layout(binding = 0) uniform samplerCube source;
uniform int face;
uniform int mode;
uniform float roughness;
uniform float exponent;
uniform int sourceMip;
uniform int sourceSize;

const float PI = 3.14159265;

float texelSolidAngle(int x, int y, int size) {
	float u = 2.0 * (float(x) + 0.5) / float(size) - 1.0;
	float v = 2.0 * (float(y) + 0.5) / float(size) - 1.0;
	float texel = 2.0 / float(size);
	float d = 1.0 + u * u + v * v;
	return texel * texel / (d * sqrt(d));
}

void main() {
	ivec2 px = pixel();
	int size = imageSize(cubeOut).x;
	if (any(greaterThanEqual(px, ivec2(size)))) return;
	vec3 n = cubeTexelDirection(face, (vec2(px) + 0.5) / float(size));
	if (mode == 1 && roughness <= 0.0) {
		imageStore(cubeOut, px, textureLod(source, n, float(sourceMip)));
		return;
	}
	vec3 sum = vec3(0.0);
	float weight = 0.0;
	for (int f = 0; f < 6; f++) {
		for (int y = 0; y < sourceSize; y++) {
			for (int x = 0; x < sourceSize; x++) {
				vec3 dir = cubeTexelDirection(f, (vec2(x, y) + 0.5) / float(sourceSize));
				float c = dot(n, dir);
				if (c <= 0.0) continue;
				float solid = texelSolidAngle(x, y, sourceSize);
				float w = mode == 0 ? solid * c : solid * pow(c, exponent);
				sum += textureLod(source, dir, float(sourceMip)).rgb * w;
				weight += w;
			}
		}
	}
	vec3 result = vec3(0.0);
	if (mode == 0) {
		result = sum / PI;
	} else if (weight > 0.0) {
		result = sum / weight;
	}
	imageStore(cubeOut, px, vec4(result, 1.0));
}
`

// Deferred and forward lighting share one kernel; forward traces the
// translucent boxes and blends them over the deferred result.
const lightingKernel = `
layout(local_size_x = 8, local_size_y = 8) in;
layout(binding = 0, rgba16f) uniform image2D localOut;
layout(binding = 0) uniform sampler2D gAlbedo;
layout(binding = 1) uniform sampler2D gNormal;
layout(binding = 2) uniform sampler2D gPosition;
layout(binding = 3) uniform samplerCubeArray specularArray;
layout(binding = 4) uniform samplerCube globalSpecular;
layout(binding = 5) uniform sampler2D shadow0;
layout(binding = 6) uniform sampler2D shadow1;
layout(binding = 7) uniform sampler2D shadow2;
layout(binding = 8) uniform sampler2D shadow3;

layout(std430, binding = 1) readonly buffer DiffuseCells { int diffCells[]; };
layout(std430, binding = 2) readonly buffer DiffuseProbes { vec4 diffProbes[]; };
layout(std430, binding = 3) readonly buffer DiffuseSH { vec4 sh[]; };
layout(std430, binding = 4) readonly buffer SpecularCells { int specCells[]; };
layout(std430, binding = 5) readonly buffer SpecularProbes { vec4 specProbes[]; };
layout(std430, binding = 6) readonly buffer SpecularSlots { int slots[]; };

struct Grid { bool enabled; vec3 origin; float spacing; ivec3 cells; bool is2D; int capacity; int probeCount; };

uniform Cam cam;
uniform Env env;
uniform mat4 shadowViewProj[4];
uniform int shadowCount;
uniform float shadowBias;
uniform Grid diffuse;
uniform Grid specular;
uniform bool hasSpecular;
uniform bool hasGlobal;
uniform int specularMips;
uniform bool forward;

int cellIndex(Grid g, vec3 p) {
	const float eps = 1e-4;
	ivec3 idx = ivec3(0);
	for (int a = 0; a < 3; a++) {
		if (g.is2D && a == 1) continue;
		float f = (p[a] - g.origin[a]) / g.spacing;
		if (f < -eps || f > float(g.cells[a]) + eps) return -1;
		idx[a] = clamp(int(floor(f)), 0, g.cells[a] - 1);
	}
	return (idx.y * g.cells.z + idx.z) * g.cells.x + idx.x;
}

bool evalSH(int slot, vec3 d, out vec3 result) {
	int base = slot * 9;
	result = vec3(0.0);
	if (slot < 0 || base + 9 > sh.length()) return false;
	float basis[9] = float[9](
		0.282095,
		0.488603 * d.y,
		0.488603 * d.z,
		0.488603 * d.x,
		1.092548 * d.x * d.y,
		1.092548 * d.y * d.z,
		0.315392 * (3.0 * d.z * d.z - 1.0),
		1.092548 * d.x * d.z,
		0.546274 * (d.x * d.x - d.y * d.y));
	for (int k = 0; k < 9; k++) result += sh[base + k].xyz * basis[k];
	return true;
}

vec3 diffuseLight(vec3 p, vec3 n) {
	if (diffuse.enabled) {
		int cell = cellIndex(diffuse, p);
		if (cell >= 0) {
			vec3 sum = vec3(0.0);
			float total = 0.0;
			int base = cell * diffuse.capacity;
			for (int k = 0; k < diffuse.capacity && base + k < diffCells.length(); k++) {
				int idx = diffCells[base + k];
				vec3 c;
				if (idx < 0 || idx >= diffProbes.length() || !evalSH(idx, n, c)) continue;
				vec3 d = diffProbes[idx].xyz - p;
				float w = 1.0 / (dot(d, d) + 1e-3);
				sum += c * w;
				total += w;
			}
			if (total > 0.0) return max(sum / total, vec3(0.0));
		}
	}
	vec3 fallback;
	if (evalSH(diffuse.probeCount, n, fallback)) return max(fallback, vec3(0.0));
	return vec3(0.0);
}

vec3 specularLight(vec3 p, vec3 n, vec3 view, float roughness) {
	vec3 r = normalize(reflect(view, n));
	float lod = roughness * float(max(0, specularMips - 1));
	vec3 radiance = vec3(0.0);
	bool found = false;
	if (specular.enabled && hasSpecular) {
		int cell = cellIndex(specular, p);
		if (cell >= 0) {
			float best = 1e30;
			int slot = -1;
			int base = cell * specular.capacity;
			for (int k = 0; k < specular.capacity && base + k < specCells.length(); k++) {
				int idx = specCells[base + k];
				if (idx < 0 || idx >= slots.length() || idx >= specProbes.length() || slots[idx] < 0) continue;
				vec3 d = specProbes[idx].xyz - p;
				float dist = dot(d, d);
				if (dist < best) { best = dist; slot = slots[idx]; }
			}
			if (slot >= 0) {
				radiance = textureLod(specularArray, vec4(r, float(slot)), lod).rgb;
				found = true;
			}
		}
	}
	if (!found && hasGlobal) radiance = textureLod(globalSpecular, r, lod).rgb;
	float ndv = max(0.0, -dot(view, n));
	float fresnel = 0.04 + 0.96 * pow(1.0 - ndv, 5.0);
	return radiance * fresnel * (1.0 - 0.5 * roughness);
}

float shadowTexel(int i, vec2 ndc) {
	ivec2 size;
	switch (i) {
	case 0: size = textureSize(shadow0, 0); break;
	case 1: size = textureSize(shadow1, 0); break;
	case 2: size = textureSize(shadow2, 0); break;
	default: size = textureSize(shadow3, 0); break;
	}
	ivec2 px = clamp(ivec2(int((ndc.x * 0.5 + 0.5) * float(size.x)), int((0.5 - ndc.y * 0.5) * float(size.y))), ivec2(0), size - 1);
	switch (i) {
	case 0: return texelFetch(shadow0, px, 0).r;
	case 1: return texelFetch(shadow1, px, 0).r;
	case 2: return texelFetch(shadow2, px, 0).r;
	}
	return texelFetch(shadow3, px, 0).r;
}

// visibility uses the first cascade that covers p.
float visibility(vec3 p) {
	for (int i = 0; i < shadowCount; i++) {
		vec4 clip = shadowViewProj[i] * vec4(p, 1.0);
		vec3 ndc = clip.xyz / clip.w;
		if (any(lessThan(ndc, vec3(-1.0))) || any(greaterThan(ndc, vec3(1.0)))) continue;
		return ndc.z * 0.5 + 0.5 - shadowBias > shadowTexel(i, ndc.xy) ? 0.0 : 1.0;
	}
	return 1.0;
}

vec3 shade(vec3 p, vec3 n, vec3 albedo, float emission, float roughness) {
	vec3 view = normalize(p - cam.position);
	vec3 direct = directRadiance(env, albedo, emission, n, visibility(p));
	return direct + albedo * diffuseLight(p, n) + specularLight(p, n, view, roughness);
}

void main() {
	ivec2 px = pixel();
	ivec2 size = imageSize(localOut);
	if (any(greaterThanEqual(px, size))) return;
	vec2 uv = (vec2(px) + 0.5) / vec2(size);
	vec4 pos = texelFetch(gPosition, px, 0);

	if (forward) {
		if (boxCount == 0) return;
		float limit = pos.w >= 0.5 ? length(pos.xyz - cam.position) : cam.far;
		Hit h;
		if (!traceBoxes(cam.position, rayDirection(cam, uv), limit, h)) return;
		vec3 c = shade(h.pos, h.normal, boxAlbedo(h.box), boxEmission(h.box), boxRoughness(h.box));
		imageStore(localOut, px, mix(imageLoad(localOut, px), vec4(c, 1.0), boxAlpha(h.box)));
		return;
	}

	if (pos.w < 0.5) {
		imageStore(localOut, px, vec4(skyRadiance(env, rayDirection(cam, uv)), 1.0));
		return;
	}
	vec4 albedo = texelFetch(gAlbedo, px, 0);
	vec4 normal = texelFetch(gNormal, px, 0);
	imageStore(localOut, px, vec4(shade(pos.xyz, normalize(normal.xyz), albedo.rgb, albedo.a, normal.a), 1.0));
}
`

const compositeKernel = `
layout(local_size_x = 8, local_size_y = 8) in;
layout(binding = 0) writeonly uniform image2D finalOut;
layout(binding = 0) uniform sampler2D localLight;
layout(binding = 1) uniform sampler2D gi;
layout(binding = 2) uniform sampler2D gAlbedo;
layout(binding = 3) uniform sampler2D voxelDebug;
uniform int mode;
uniform float indirectStrength;
uniform float exposure;

void main() {
	ivec2 px = pixel();
	ivec2 size = imageSize(finalOut);
	if (any(greaterThanEqual(px, size))) return;
	vec2 uv = (vec2(px) + 0.5) / vec2(size);
	vec3 direct = textureLod(localLight, uv, 0.0).rgb;
	vec3 indirect = textureLod(gi, uv, 0.0).rgb * textureLod(gAlbedo, uv, 0.0).rgb * indirectStrength;
	vec3 rgb;
	switch (mode) {
	case 1: rgb = direct; break;
	case 2: rgb = indirect; break;
	case 3: rgb = textureLod(voxelDebug, uv, 0.0).rgb; break;
	default: rgb = direct + indirect; break;
	}
	if (exposure > 0.0) rgb = 1.0 - exp(-rgb * exposure);
	imageStore(finalOut, px, vec4(rgb, 1.0));
}
`

const placeOnTerrainKernel = `
layout(local_size_x = 64) in;
layout(binding = 0) uniform sampler2D heightMap;
layout(binding = 1) uniform sampler2D splatMap;
layout(std430, binding = 1) readonly buffer PointsIn { vec4 pointsIn[]; };
layout(std430, binding = 2) writeonly buffer PointsOut { vec4 pointsOut[]; };
uniform int count;
uniform int splatChannel;
uniform bool hasSplat;
uniform float heightDelta;
uniform vec2 origin;
uniform float worldSize;
uniform float heightScale;

void main() {
	int i = int(gl_GlobalInvocationID.x);
	if (i >= count) return;
	vec4 pt = pointsIn[i];
	vec2 uv = (pt.xz - origin) / worldSize;
	if (any(lessThan(uv, vec2(0.0))) || any(greaterThan(uv, vec2(1.0)))) {
		pointsOut[i] = vec4(pt.xyz, 0.0);
		return;
	}
	float y = textureLod(heightMap, uv, 0.0).r * heightScale + heightDelta;
	float accepted = 1.0;
	if (hasSplat && splatChannel >= 0 && splatChannel < 4 && textureLod(splatMap, uv, 0.0)[splatChannel] < 0.5) {
		accepted = 0.0;
	}
	pointsOut[i] = vec4(pt.x, y, pt.z, accepted);
}
`

// Presentation shaders draw a texture over the whole window.
const presentVertexShader = `
#version 410 core
layout (location = 0) in vec3 aPos;
layout (location = 1) in vec2 aTexCoord;

out vec2 TexCoord;

void main() {
    gl_Position = vec4(aPos, 1.0);
    TexCoord = aTexCoord;
}
`

const presentFragmentShader = `
#version 410 core
in vec2 TexCoord;
out vec4 FragColor;

uniform sampler2D screenTexture;
uniform float gamma;

void main() {
    vec3 color = texture(screenTexture, TexCoord).rgb;
    if (gamma > 0.0) {
        color = pow(color, vec3(1.0 / gamma));
    }
    FragColor = vec4(color, 1.0);
}
`
