// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package clock

import "github.com/jacobsa/timeutil"

// RealClock, FakeClock and SimulatedClock all satisfy timeutil.Clock, the
// interface internal/vfs actually depends on; this package supplies the
// concrete implementations timeutil itself doesn't.
var (
	_ timeutil.Clock = RealClock{}
	_ timeutil.Clock = &FakeClock{}
	_ timeutil.Clock = &SimulatedClock{}
)
