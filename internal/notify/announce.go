package notify

import "fmt"

/*
|--------------------------------------------------------------------------
| Overhead Announcement Audio
|--------------------------------------------------------------------------
| Sequence played by the waiting-room display when a patient is called:
| chime, "queue number", the spoken number, "please proceed to", and the
| doctor's room audio file when one is configured.
*/

// BuildAnnouncement returns the ordered audio segment paths for one call.
func BuildAnnouncement(queueNumber int, roomAudio string) []string {
	paths := []string{
		"audio/chime.mp3",
		"audio/queue_number.mp3",
	}

	paths = append(paths, numberSegments(queueNumber)...)
	paths = append(paths, "audio/proceed_to.mp3")

	if roomAudio != "" {
		paths = append(paths, fmt.Sprintf("audio/%s", roomAudio))
	}

	return paths
}

var ones = []string{
	"zero", "one", "two", "three", "four",
	"five", "six", "seven", "eight", "nine",
	"ten", "eleven", "twelve", "thirteen", "fourteen",
	"fifteen", "sixteen", "seventeen", "eighteen", "nineteen",
}

var tens = []string{
	"", "", "twenty", "thirty", "forty",
	"fifty", "sixty", "seventy", "eighty", "ninety",
}

func numberSegments(num int) []string {
	switch {
	case num < 0:
		return nil
	case num < 20:
		return []string{fmt.Sprintf("audio/%s.mp3", ones[num])}
	case num < 100:
		res := []string{fmt.Sprintf("audio/%s.mp3", tens[num/10])}
		if num%10 > 0 {
			res = append(res, fmt.Sprintf("audio/%s.mp3", ones[num%10]))
		}
		return res
	case num < 1000:
		res := []string{
			fmt.Sprintf("audio/%s.mp3", ones[num/100]),
			"audio/hundred.mp3",
		}
		if num%100 > 0 {
			res = append(res, numberSegments(num%100)...)
		}
		return res
	}

	// Queue numbers are dense per day; four digits means something is off,
	// but read them out digit by digit rather than stay silent.
	var res []string
	for num > 0 {
		res = append([]string{fmt.Sprintf("audio/%s.mp3", ones[num%10])}, res...)
		num /= 10
	}
	return res
}
