// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package tasks schedules deferred, cancellable callbacks grouped by key.
//
// Assistant replies are delivered after a simulated delay. Each reply is a
// Task keyed by the conversation it belongs to, so closing a surface or
// deleting a conversation can cancel everything still waiting for it.
//
// # Key Types
//
//   - Task: one deferred callback with status and timing
//   - Scheduler: owns the timers and runs callbacks exactly once
//   - Clock: time source; RealClock in production, ManualClock in tests
//
// # Usage
//
//	s := tasks.NewScheduler(tasks.WithLogger(logger))
//	defer s.Close()
//
//	s.Schedule(convID, 900*time.Millisecond, func(ctx context.Context) {
//	    if ctx.Err() != nil {
//	        return
//	    }
//	    store.Append(convID, reply)
//	})
//
//	s.Cancel(convID) // drop anything still waiting for convID
//
// A cancelled task never runs. A task whose timer already fired runs to
// completion; its context is cancelled so the callback can bail out early.
package tasks
