package wasmy

import "testing"

func TestLoadConfigFromEnvDefaults(t *testing.T) {
	c, err := LoadConfigFromEnv()
	if err != nil {
		t.Fatalf("LoadConfigFromEnv: %v", err)
	}
	if c.WASIEnvPassthrough {
		t.Error("default WASIEnvPassthrough must be false")
	}
}

func TestSetConfigOverridesActive(t *testing.T) {
	defer SetConfig(Config{})
	SetConfig(Config{MaxMemoryPages: 64})
	if got := currentConfig().MaxMemoryPages; got != 64 {
		t.Errorf("currentConfig().MaxMemoryPages = %d, want 64", got)
	}
}
