// Copyright 2025 The gVisor Authors.
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

package log

import (
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"
)

// GoogleEmitter is a wrapper that emits logs in a format compatible with
// package github.com/golang/glog.
type GoogleEmitter struct {
	*Writer
}

// buffer is a simple inline buffer to avoid churn. The data slice is generally
// kept to the local byte array, and we avoid having to allocate it on the heap.
type buffer struct {
	local [256]byte
	data  []byte
}

func (b *buffer) start() {
	b.data = b.local[:0]
}

func (b *buffer) write(c byte) {
	b.data = append(b.data, c)
}

func (b *buffer) writeAll(d []byte) {
	b.data = append(b.data, d...)
}

func (b *buffer) writeTwoDigits(v int) {
	v = v % 100
	b.write('0' + byte(v/10))
	b.write('0' + byte(v%10))
}

func (b *buffer) writeSixDigits(v int) {
	v = v % 1000000
	for div := 100000; div > 0; div /= 10 {
		b.write('0' + byte((v/div)%10))
	}
}

func calculateBytes(v int, pad int) []byte {
	var d []byte
	r := 1

	for n := 10; v >= r; n = n * 10 {
		d = append(d, '0'+byte((v%n)/r))
		r = n
	}

	for i := len(d); i < pad; i++ {
		d = append(d, ' ')
	}

	for i := 0; i < len(d)/2; i++ {
		d[i], d[len(d)-(i+1)] = d[len(d)-(i+1)], d[i]
	}
	return d
}

// pid is used for the threadid component of the header.
var pid = calculateBytes(os.Getpid(), 7)

// Emit emits the message, google-style.
//
// Log lines have this form:
//
//	Lmmdd hh:mm:ss.uuuuuu threadid file:line] msg...
//
// where the fields are defined as follows:
//
//	L                A single character, representing the log level (eg 'I' for INFO)
//	mm               The month (zero padded; ie May is '05')
//	dd               The day (zero padded)
//	hh:mm:ss.uuuuuu  Time in hours, minutes and fractional seconds
//	threadid         The space-padded thread ID as returned by GetTID()
//	file             The file name
//	line             The line number
//	msg              The user-supplied message
func (g GoogleEmitter) Emit(depth int, level Level, timestamp time.Time, format string, args ...any) {
	var b buffer
	b.start()

	switch level {
	case Debug:
		b.write('D')
	case Info:
		b.write('I')
	case Warning:
		b.write('W')
	}

	_, month, day := timestamp.Date()
	hour, minute, second := timestamp.Clock()
	b.writeTwoDigits(int(month))
	b.writeTwoDigits(int(day))
	b.write(' ')
	b.writeTwoDigits(hour)
	b.write(':')
	b.writeTwoDigits(minute)
	b.write(':')
	b.writeTwoDigits(second)
	b.write('.')
	b.writeSixDigits(timestamp.Nanosecond() / 1000)
	b.write(' ')

	b.writeAll(pid)
	b.write(' ')

	file := "x"
	line := 0
	if _, f, l, ok := runtime.Caller(depth + 1); ok {
		if slash := strings.LastIndexByte(f, '/'); slash >= 0 {
			f = f[slash+1:]
		}
		file, line = f, l
	}
	b.writeAll([]byte(file))
	b.write(':')
	b.writeAll([]byte(fmt.Sprint(line)))
	b.write(']')
	b.write(' ')

	b.writeAll([]byte(fmt.Sprintf(format, args...)))
	b.write('\n')

	g.Writer.Write(b.data)
}
