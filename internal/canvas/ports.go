/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package canvas

import "context"

// Level grades a user-visible notification.
type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Notifier is the editor shell's dialog and toast surface.
type Notifier interface {
	// Confirm asks the user before a destructive action the controller delegates upward.
	Confirm(ctx context.Context, message string) bool
	Notify(level Level, message string)
}

// Page is a stored page. Draft and Published hold serialized trees; an empty Draft
// means the page has never been edited since publishing.
type Page struct {
	ID        string
	Name      string
	Draft     []byte
	Published []byte
}

// PageStore fetches and persists pages.
type PageStore interface {
	FetchPage(ctx context.Context, name string) (Page, error)
	SavePage(ctx context.Context, id string, tree []byte) error
	DeletePage(ctx context.Context, id string) error
}

// Metrics are layout measurements taken by the shell. CanvasWidth is the unscaled
// width of the root block; CanvasTop is the canvas top after scaling with no
// translation applied.
type Metrics struct {
	ContainerWidth float64
	ContainerTop   float64
	CanvasWidth    float64
	CanvasTop      float64
	// LayoutDone is set once the document finished its first layout pass.
	LayoutDone bool
}

// Ready reports whether the measurements can be used.
func (m Metrics) Ready() bool {
	return m.LayoutDone && m.ContainerWidth > 0 && m.CanvasWidth > 0
}

// Transform is the canvas pan/zoom state.
type Transform struct {
	Scale      float64
	TranslateX float64
	TranslateY float64
}

type silent struct{}

func (silent) Confirm(context.Context, string) bool { return false }
func (silent) Notify(Level, string)                 {}
