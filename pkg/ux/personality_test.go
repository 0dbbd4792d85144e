// Copyright (C) 2025 CodeVault AI (engineering@codevault.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"os"
	"sync"
	"testing"
)

func TestParsePersonalityLevel(t *testing.T) {
	tests := []struct {
		in   string
		want PersonalityLevel
	}{
		{"full", PersonalityFull},
		{"f", PersonalityFull},
		{"FULL", PersonalityFull},
		{"standard", PersonalityStandard},
		{"std", PersonalityStandard},
		{"s", PersonalityStandard},
		{"minimal", PersonalityMinimal},
		{"min", PersonalityMinimal},
		{"m", PersonalityMinimal},
		{"machine", PersonalityMachine},
		{"quiet", PersonalityMachine},
		{"q", PersonalityMachine},
		{"", PersonalityStandard},
		{"garbage", PersonalityStandard},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParsePersonalityLevel(tt.in); got != tt.want {
				t.Errorf("ParsePersonalityLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestSetAndGetPersonality(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	want := Personality{Level: PersonalityMinimal, ShowHints: false}
	SetPersonality(want)

	got := GetPersonality()
	if got.Level != want.Level {
		t.Errorf("Level = %v, want %v", got.Level, want.Level)
	}
	if got.ShowHints != want.ShowHints {
		t.Errorf("ShowHints = %v, want %v", got.ShowHints, want.ShowHints)
	}
}

func TestSetPersonalityLevel_PreservesOtherFields(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonality(Personality{Level: PersonalityFull, ShowHints: true})
	SetPersonalityLevel(PersonalityMachine)

	got := GetPersonality()
	if got.Level != PersonalityMachine {
		t.Errorf("Level = %v, want machine", got.Level)
	}
	if !got.ShowHints {
		t.Error("ShowHints should survive a level-only change")
	}
}

func TestInitPersonality_EnvOverride(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	t.Setenv("CV_OUTPUT", "machine")
	InitPersonality()

	if GetPersonality().Level != PersonalityMachine {
		t.Errorf("Level = %v, want machine from CV_OUTPUT", GetPersonality().Level)
	}
}

func TestInitPersonality_EnvMinimal(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	t.Setenv("CV_OUTPUT", "min")
	InitPersonality()

	if GetPersonality().Level != PersonalityMinimal {
		t.Errorf("Level = %v, want minimal", GetPersonality().Level)
	}
}

func TestInitPersonality_NonTerminal(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	// Tests never run with a TTY stdout, so without CV_OUTPUT the
	// fallback must be machine mode.
	os.Unsetenv("CV_OUTPUT")
	InitPersonality()

	if GetPersonality().Level != PersonalityMachine {
		t.Errorf("Level = %v, want machine for piped stdout", GetPersonality().Level)
	}
}

func TestIsInteractive_MachineMode(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityMachine)
	if IsInteractive() {
		t.Error("IsInteractive should be false in machine mode")
	}
}

func TestShouldShowProgress(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityMachine)
	if ShouldShowProgress() {
		t.Error("no progress in machine mode")
	}

	SetPersonalityLevel(PersonalityFull)
	if !ShouldShowProgress() {
		t.Error("progress expected in full mode")
	}
}

func TestDefaultPersonality(t *testing.T) {
	p := DefaultPersonality()
	if p.Level != PersonalityFull {
		t.Errorf("default level = %v, want full", p.Level)
	}
	if !p.ShowHints {
		t.Error("default should show hints")
	}
}

func TestPersonality_ConcurrentAccess(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			SetPersonalityLevel(PersonalityMinimal)
		}()
		go func() {
			defer wg.Done()
			_ = GetPersonality()
		}()
	}
	wg.Wait()
}
