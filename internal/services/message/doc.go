// Package message binds validation, window gating, encryption and
// persistence into the message lifecycle: composed, validated, encrypted,
// persisted, delivered, read, with edit and delete as window-bounded side
// transitions.
package message
