package dispatcher

import "errors"

var (
	// errShutdown is delivered to any command submitted after Shutdown.
	errShutdown = errors.New("dispatcher: shutdown")
	// errQueueFull is delivered to a command dropped because the pre-init
	// queue reached maxPreInitQueueSize.
	errQueueFull = errors.New("dispatcher: pre-init queue full")
	// errCleared is delivered to TestTask resolvers dropped by Clear.
	errCleared = errors.New("dispatcher: cleared")
	// errTaskPanicked marks a task whose function panicked during execute.
	errTaskPanicked = errors.New("dispatcher: task panicked")
)
