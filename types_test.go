package rhi

import (
	"errors"
	"slices"
	"testing"
)

func TestParseBackend(t *testing.T) {
	tests := []struct {
		name    string
		want    Backend
		wantErr bool
	}{
		{"", BackendUndefined, false},
		{"dx12", BackendDX12, false},
		{"D3D12", BackendDX12, false},
		{" metal ", BackendMetal, false},
		{"mtl", BackendMetal, false},
		{"vk", BackendVulkan, false},
		{"opengl", BackendUndefined, true},
	}
	for _, tt := range tests {
		got, err := ParseBackend(tt.name)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseBackend(%q) error = %v, wantErr %v", tt.name, err, tt.wantErr)
		}
		if err != nil && !errors.Is(err, ErrInvalidDescriptor) {
			t.Errorf("ParseBackend(%q) error = %v, want %v", tt.name, err, ErrInvalidDescriptor)
		}
		if got != tt.want {
			t.Errorf("ParseBackend(%q) = %s, want %s", tt.name, got, tt.want)
		}
	}
}

func TestPlatformBackend(t *testing.T) {
	tests := []struct {
		goos string
		want Backend
	}{
		{"windows", BackendDX12},
		{"darwin", BackendMetal},
		{"ios", BackendMetal},
		{"linux", BackendVulkan},
		{"android", BackendVulkan},
	}
	for _, tt := range tests {
		if got := platformBackend(tt.goos); got != tt.want {
			t.Errorf("platformBackend(%q) = %s, want %s", tt.goos, got, tt.want)
		}
	}
}

func TestBindTypeClass(t *testing.T) {
	tests := []struct {
		bindType BindType
		want     BindClass
	}{
		{BindTypeSampler, BindClassSampler},
		{BindTypeTexture2D, BindClassSRV},
		{BindTypeTextureCube, BindClassSRV},
		{BindTypeBuffer, BindClassSRV},
		{BindTypeAccelStruct, BindClassSRV},
		{BindTypeUniformBuffer, BindClassCBV},
		{BindTypeStorageBuffer, BindClassUAV},
		{BindTypeStorageTexture3D, BindClassUAV},
		{BindTypeUndefined, BindClassNone},
	}
	for _, tt := range tests {
		if got := tt.bindType.Class(); got != tt.want {
			t.Errorf("%s.Class() = %s, want %s", tt.bindType, got, tt.want)
		}
	}
}

func TestBindTypeKinds(t *testing.T) {
	if !BindTypeStorageTexture2DArray.IsTexture() || BindTypeStorageTexture2DArray.IsBuffer() {
		t.Error("StorageTexture2DArray should be a texture")
	}
	if !BindTypeUniformBuffer.IsBuffer() || BindTypeUniformBuffer.IsTexture() {
		t.Error("UniformBuffer should be a buffer")
	}
	if BindTypeSampler.IsBuffer() || BindTypeSampler.IsTexture() || BindTypeAccelStruct.IsBuffer() {
		t.Error("Sampler and AccelStruct are neither buffers nor textures")
	}
	if got := BindType(200).String(); got != "BindType(200)" {
		t.Errorf("BindType(200).String() = %q", got)
	}
}

func TestShaderStageStages(t *testing.T) {
	tests := []struct {
		stage ShaderStage
		want  []BindStage
	}{
		{ShaderStageNone, nil},
		{ShaderStageFragment, []BindStage{BindStageFragment}},
		{ShaderStageVertex | ShaderStageCompute, []BindStage{BindStageVertex, BindStageCompute}},
		{ShaderStageAll, []BindStage{BindStageVertex, BindStageFragment, BindStageCompute, BindStageAll}},
	}
	for _, tt := range tests {
		if got := tt.stage.Stages(); !slices.Equal(got, tt.want) {
			t.Errorf("%s.Stages() = %v, want %v", tt.stage, got, tt.want)
		}
	}
}

func TestResourceStateString(t *testing.T) {
	tests := []struct {
		state ResourceState
		want  string
	}{
		{StateCommon, "Common"},
		{StateCopyDst, "CopyDst"},
		{StateDepthRead | StatePixelShaderResource, "DepthRead|PixelShaderResource"},
		{StateShadingRate, "ShadingRate"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("ResourceState(%d).String() = %q, want %q", uint32(tt.state), got, tt.want)
		}
	}
}

func TestResourceStateBits(t *testing.T) {
	if StateVertexBuffer != 1 || StateShadingRate != 1<<16 {
		t.Errorf("state bits = %#x..%#x, want 0x1..0x10000", uint32(StateVertexBuffer), uint32(StateShadingRate))
	}
	if StateGenericRead&(StateRenderTarget|StateUnorderedAccess|StateCopyDst) != 0 {
		t.Errorf("StateGenericRead = %s contains a write state", StateGenericRead)
	}
}

func TestFunctionTypeIsRaytracing(t *testing.T) {
	for ft := FunctionVertex; ft <= FunctionCallable; ft++ {
		want := ft >= FunctionRayGeneration
		if got := ft.IsRaytracing(); got != want {
			t.Errorf("FunctionType(%d).IsRaytracing() = %v, want %v", ft, got, want)
		}
	}
}
