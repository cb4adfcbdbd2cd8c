package log

import "log/slog"

func FlowToken[T ~string](token T) slog.Attr {
	return slog.String("flow_token", string(token))
}

func FlowName[T ~string](name T) slog.Attr {
	return slog.String("flow_name", string(name))
}

func FlowID[T ~string](id T) slog.Attr {
	return slog.String("flow_id", string(id))
}

func SessionID[T ~string](id T) slog.Attr {
	return slog.String("session_id", string(id))
}

func EventID[T ~string](id T) slog.Attr {
	return slog.String("event_id", string(id))
}

func Action[T ~string](action T) slog.Attr {
	return slog.String("action", string(action))
}

func Screen[T ~string](screen T) slog.Attr {
	return slog.String("screen", string(screen))
}

func Status[T ~string](status T) slog.Attr {
	return slog.String("status", string(status))
}

func URL(url string) slog.Attr {
	return slog.String("url", url)
}

func StatusCode(code int) slog.Attr {
	return slog.Int("status_code", code)
}

func Error(err error) slog.Attr {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return slog.String("error", msg)
}

func ErrorString(msg string) slog.Attr {
	return slog.String("error", msg)
}
