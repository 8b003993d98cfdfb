package testsupport

import (
	"os"
	"path/filepath"
	"strings"
)

func (b *configBuilder) writeStubs() {
	binDir := filepath.Join(b.baseDir, "bin")
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		b.t.Fatalf("mkdir bin dir: %v", err)
	}

	b.cfg.Tools.YtDlpPath = b.writeScript(binDir, "yt-dlp", b.extractorScript(filepath.Join(binDir, "yt-dlp.calls")))
	b.cfg.Tools.PythonPath = b.writeScript(binDir, "python", b.pythonScript())
	b.cfg.Tools.FFmpegPath = b.writeScript(binDir, "ffmpeg", ffmpegScript)
}

func (b *configBuilder) writeScript(dir, name, body string) string {
	target := filepath.Join(dir, name)
	if err := os.WriteFile(target, []byte(body), 0o755); err != nil {
		b.t.Fatalf("write stub %s: %v", name, err)
	}
	return target
}

func (b *configBuilder) extractorScript(callLog string) string {
	var sb strings.Builder
	sb.WriteString("#!/bin/sh\n")
	sb.WriteString("case \" $* \" in\n  *\" --list-impersonate-targets \"*)\n")
	if b.stubs.impersonate {
		sb.WriteString("    echo \"chrome-131:chrome\"; exit 0 ;;\n")
	} else {
		sb.WriteString("    exit 2 ;;\n")
	}
	sb.WriteString("esac\n")
	sb.WriteString("echo \"$*\" >> '" + callLog + "'\n")

	if b.stubs.extractStderr != "" {
		sb.WriteString("cat >&2 <<'STDERR'\n" + b.stubs.extractStderr + "\nSTDERR\nexit 1\n")
		return sb.String()
	}

	sb.WriteString(`out=""
prev=""
dump=0
for a in "$@"; do
  if [ "$prev" = "-o" ]; then out="$a"; fi
  if [ "$a" = "--dump-single-json" ]; then dump=1; fi
  prev="$a"
done
if [ "$dump" = 1 ]; then
  cat <<'JSON'
` + b.stubs.metadata + `
JSON
  exit 0
fi
`)
	if !b.stubs.skipAudio {
		sb.WriteString(`if [ -n "$out" ]; then
  file=$(printf '%s' "$out" | sed 's/%(ext)s/mp3/')
  printf 'audio' > "$file"
fi
`)
	}
	sb.WriteString("exit 0\n")
	return sb.String()
}

func (b *configBuilder) pythonScript() string {
	var sb strings.Builder
	sb.WriteString(`#!/bin/sh
if [ "$1" = "--version" ]; then echo "Python 3.11.9"; exit 0; fi
`)
	fail := ""
	if b.stubs.separateStderr != "" {
		fail = "  cat >&2 <<'STDERR'\n" + b.stubs.separateStderr + "\nSTDERR\n  exit 1\n"
	}
	writeStems := func(dir, ext string) string {
		return `  mkdir -p "` + dir + `"
  for s in vocals drums bass other; do
    [ "$s" = "` + b.stubs.missingStem + `" ] || printf '%s' "$s" > "` + dir + `/$s` + ext + `"
  done
  exit 0
`
	}

	switch b.stubs.engine {
	case "demucs":
		// -m demucs --mp3 --out OUT --name MODEL SRC
		sb.WriteString(`if [ "$1" = "-m" ] && [ "$2" = "demucs" ]; then
  if [ "$3" = "--help" ]; then exit 0; fi
` + fail + `  track=$(basename "$8"); track="${track%.*}"
` + writeStems(`$5/$7/$track`, ".mp3") + `fi
`)
	case "spleeter":
		// -m spleeter separate -p spleeter:4stems -o OUT SRC
		sb.WriteString(`if [ "$1" = "-m" ] && [ "$2" = "spleeter" ]; then
  if [ "$4" = "-h" ]; then exit 0; fi
` + fail + `  track=$(basename "$8"); track="${track%.*}"
` + writeStems(`$7/$track`, ".wav") + `fi
`)
	}
	sb.WriteString("echo \"No module named $2\" >&2\nexit 1\n")
	return sb.String()
}

// ffmpeg -y -i IN -codec:a libmp3lame -q:a 2 OUT
const ffmpegScript = `#!/bin/sh
if [ "$1" = "-version" ]; then echo "ffmpeg version 6.1"; exit 0; fi
cp "$3" "$8"
`
